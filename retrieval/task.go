package retrieval

import (
	"fmt"

	"github.com/zero-day-ai/kgraph/schema"
)

// Task selects a preset hop count and relationship weight table.
type Task string

const (
	TaskGeneral   Task = "general"
	TaskResearch  Task = "research"
	TaskFactCheck Task = "fact_check"
	TaskPlanning  Task = "planning"
)

// String returns the task name.
func (t Task) String() string {
	return string(t)
}

// IsValid reports whether t is a known task.
func (t Task) IsValid() bool {
	_, ok := presets[t]
	return ok
}

// ParseTask parses a task name. The empty string means TaskGeneral.
func ParseTask(s string) (Task, error) {
	if s == "" {
		return TaskGeneral, nil
	}
	t := Task(s)
	if !t.IsValid() {
		return "", fmt.Errorf("invalid task: %q", s)
	}
	return t, nil
}

// AllTasks returns every task.
func AllTasks() []Task {
	return []Task{TaskGeneral, TaskResearch, TaskFactCheck, TaskPlanning}
}

type preset struct {
	maxHops int
	weights map[schema.RelationType]float64
}

// Relationship types missing from a table score DefaultRelationWeight.
var presets = map[Task]preset{
	TaskGeneral: {
		maxHops: 2,
		weights: map[schema.RelationType]float64{
			schema.RelSameAs:        1.0,
			schema.RelReplyTo:       0.9,
			schema.RelInThread:      0.85,
			schema.RelSentBy:        0.8,
			schema.RelDiscusses:     0.8,
			schema.RelAbout:         0.8,
			schema.RelAuthored:      0.7,
			schema.RelMentions:      0.7,
			schema.RelHasAttachment: 0.7,
			schema.RelAttachedTo:    0.7,
			schema.RelInChannel:     0.6,
			schema.RelSentTo:        0.6,
			schema.RelPartOf:        0.6,
			schema.RelContains:      0.6,
			schema.RelReferences:    0.6,
			schema.RelSubtopicOf:    0.6,
			schema.RelDependsOn:     0.6,
			schema.RelAssignedTo:    0.6,
			schema.RelAttends:       0.5,
			schema.RelAttendedBy:    0.5,
			schema.RelRelatedTo:     0.5,
			schema.RelCC:            0.5,
		},
	},
	TaskResearch: {
		maxHops: 3,
		weights: map[schema.RelationType]float64{
			schema.RelDiscusses:  1.0,
			schema.RelAbout:      1.0,
			schema.RelSubtopicOf: 0.9,
			schema.RelRelatedTo:  0.8,
			schema.RelMentions:   0.8,
			schema.RelReferences: 0.8,
			schema.RelReplyTo:    0.7,
			schema.RelInThread:   0.7,
			schema.RelAuthored:   0.6,
			schema.RelPartOf:     0.5,
		},
	},
	TaskFactCheck: {
		maxHops: 1,
		weights: map[schema.RelationType]float64{
			schema.RelSameAs:        1.0,
			schema.RelAuthored:      0.9,
			schema.RelSentBy:        0.9,
			schema.RelHasAttachment: 0.9,
			schema.RelAttachedTo:    0.9,
			schema.RelIssuedBy:      0.8,
			schema.RelPaidBy:        0.8,
			schema.RelReferences:    0.8,
			schema.RelMemberOf:      0.6,
		},
	},
	TaskPlanning: {
		maxHops: 2,
		weights: map[schema.RelationType]float64{
			schema.RelDependsOn:  1.0,
			schema.RelPrecedes:   1.0,
			schema.RelFollows:    1.0,
			schema.RelBlocks:     0.9,
			schema.RelDueBefore:  0.9,
			schema.RelAssignedTo: 0.8,
			schema.RelAttends:    0.7,
			schema.RelPartOf:     0.7,
			schema.RelLocatedAt:  0.5,
		},
	},
}

// RelationWeights returns a copy of the weight table for t.
func RelationWeights(t Task) map[schema.RelationType]float64 {
	p, ok := presets[t]
	if !ok {
		return nil
	}
	out := make(map[schema.RelationType]float64, len(p.weights))
	for k, v := range p.weights {
		out[k] = v
	}
	return out
}

// MaxHops returns the preset hop count for t.
func MaxHops(t Task) int {
	return presets[t].maxHops
}
