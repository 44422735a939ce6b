package schema

// DefaultStatuses is the closed set accepted for the "status" property.
var DefaultStatuses = []string{
	"active", "archived", "pending", "in_progress", "completed", "cancelled",
	"draft", "sent", "received", "tentative", "confirmed",
}

func float(v float64) *float64 { return &v }

// DefaultNodeSpecs returns the built-in node type table.
func DefaultNodeSpecs() []NodeSpec {
	return []NodeSpec{
		{Type: NodeTypeMessage, Description: "chat message",
			Required: []string{"text", "timestamp"},
			Optional: []string{"text", "sender", "channel_id", "thread_id", "entities", "is_read", "metadata"}},
		{Type: NodeTypePerson, Description: "person or contact",
			Required: []string{"name"},
			Optional: []string{"email", "phone", "organization", "aliases", "metadata"}},
		{Type: NodeTypeDocument, Description: "document or file",
			Required: []string{"title"},
			Optional: []string{"content", "source", "url", "mime_type", "size_bytes", "tags", "entities", "summary"}},
		{Type: NodeTypeEvent, Description: "calendar event",
			Required: []string{"title", "start_time"},
			Optional: []string{"end_time", "location", "attendees", "is_all_day", "status", "description"}},
		{Type: NodeTypeTopic, Description: "topic or theme",
			Required: []string{"name"},
			Optional: []string{"description", "keywords", "importance"}},
		{Type: NodeTypeSession, Description: "conversation or work session",
			Required: []string{"start_time"},
			Optional: []string{"end_time", "summary", "message_count", "status"}},
		{Type: NodeTypeChannel, Description: "chat channel",
			Required: []string{"name"},
			Optional: []string{"platform", "is_private", "participant_count", "description"}},
		{Type: NodeTypeThread, Description: "message or mail thread",
			Optional: []string{"subject", "message_count", "participants"}},
		{Type: NodeTypeEmail, Description: "e-mail message",
			Required: []string{"subject", "sender", "timestamp"},
			Optional: []string{"subject", "text", "recipients", "headers", "thread_id", "is_read", "entities"}},
		{Type: NodeTypeAttachment, Description: "file attached to a message",
			Required: []string{"filename"},
			Optional: []string{"mime_type", "size_bytes", "url"}},
		{Type: NodeTypeReceipt, Description: "purchase receipt",
			Required: []string{"merchant", "total"},
			Optional: []string{"currency", "date", "items", "tax"}},
		{Type: NodeTypeTask, Description: "task or todo",
			Required: []string{"title", "status"},
			Optional: []string{"due_date", "priority", "description", "tags"}},
		{Type: NodeTypeOrganization, Description: "company or group",
			Required: []string{"name"},
			Optional: []string{"domain", "description"}},
		{Type: NodeTypeLocation, Description: "place",
			Required: []string{"name"},
			Optional: []string{"address", "latitude", "longitude"}},
		{Type: NodeTypeProject, Description: "project",
			Required: []string{"name"},
			Optional: []string{"status", "description", "due_date"}},
		{Type: NodeTypeNote, Description: "free-form note",
			Required: []string{"text"},
			Optional: []string{"title", "tags", "entities"}},
	}
}

// DefaultPropertySpecs returns the built-in property type table.
func DefaultPropertySpecs() []PropertySpec {
	return []PropertySpec{
		// strings
		{Name: "text", Type: PropertyString, MaxLength: 1_000_000},
		{Name: "content", Type: PropertyString, MaxLength: 10_000_000},
		{Name: "name", Type: PropertyString, MinLength: 1, MaxLength: 500},
		{Name: "title", Type: PropertyString, MinLength: 1, MaxLength: 1000},
		{Name: "subject", Type: PropertyString, MaxLength: 1000},
		{Name: "summary", Type: PropertyString, MaxLength: 100_000},
		{Name: "description", Type: PropertyString, MaxLength: 100_000},
		{Name: "email", Type: PropertyString, MaxLength: 320, Format: FormatEmail},
		{Name: "sender", Type: PropertyString, MaxLength: 320, Format: FormatEmail},
		{Name: "phone", Type: PropertyString, MaxLength: 64},
		{Name: "organization", Type: PropertyString, MaxLength: 500},
		{Name: "source", Type: PropertyString, MaxLength: 2048},
		{Name: "url", Type: PropertyString, MaxLength: 2048},
		{Name: "mime_type", Type: PropertyString, MaxLength: 255},
		{Name: "filename", Type: PropertyString, MinLength: 1, MaxLength: 1024},
		{Name: "channel_id", Type: PropertyString, MaxLength: 255},
		{Name: "thread_id", Type: PropertyString, MaxLength: 255},
		{Name: "platform", Type: PropertyString, MaxLength: 100},
		{Name: "location", Type: PropertyString, MaxLength: 1000},
		{Name: "address", Type: PropertyString, MaxLength: 1000},
		{Name: "merchant", Type: PropertyString, MinLength: 1, MaxLength: 500},
		{Name: "currency", Type: PropertyString, MinLength: 3, MaxLength: 3},
		{Name: "domain", Type: PropertyString, MaxLength: 255},
		{Name: "priority", Type: PropertyString, MaxLength: 32},
		{Name: "status", Type: PropertyString, MaxLength: 32},

		// numbers
		{Name: "total", Type: PropertyFloat, Min: float(0), Max: float(1_000_000_000)},
		{Name: "tax", Type: PropertyFloat, Min: float(0), Max: float(1_000_000_000)},
		{Name: "importance", Type: PropertyFloat, Min: float(0), Max: float(1)},
		{Name: "latitude", Type: PropertyFloat, Min: float(-90), Max: float(90)},
		{Name: "longitude", Type: PropertyFloat, Min: float(-180), Max: float(180)},
		{Name: "message_count", Type: PropertyInteger, Min: float(0)},
		{Name: "participant_count", Type: PropertyInteger, Min: float(0)},
		{Name: "size_bytes", Type: PropertyInteger, Min: float(0)},

		// booleans
		{Name: "is_read", Type: PropertyBoolean},
		{Name: "is_private", Type: PropertyBoolean},
		{Name: "is_all_day", Type: PropertyBoolean},

		// dates
		{Name: "timestamp", Type: PropertyDateTime},
		{Name: "date", Type: PropertyDateTime},
		{Name: "due_date", Type: PropertyDateTime},
		{Name: "start_time", Type: PropertyDateTime},
		{Name: "end_time", Type: PropertyDateTime},
		{Name: "created_at", Type: PropertyDateTime},
		{Name: "updated_at", Type: PropertyDateTime},

		// collections
		{Name: "entities", Type: PropertyArray, AcceptObject: true},
		{Name: "tags", Type: PropertyArray},
		{Name: "keywords", Type: PropertyArray},
		{Name: "aliases", Type: PropertyArray},
		{Name: "recipients", Type: PropertyArray},
		{Name: "participants", Type: PropertyArray},
		{Name: "attendees", Type: PropertyArray},
		{Name: "items", Type: PropertyArray},
		{Name: "metadata", Type: PropertyObject},
		{Name: "headers", Type: PropertyObject},
	}
}

// DefaultRelationshipRules returns the built-in table of legal triples.
func DefaultRelationshipRules() []RelationshipRule {
	return []RelationshipRule{
		// messages
		{From: NodeTypeMessage, Relation: RelSentBy, To: []NodeType{NodeTypePerson}},
		{From: NodeTypeMessage, Relation: RelInChannel, To: []NodeType{NodeTypeChannel}},
		{From: NodeTypeMessage, Relation: RelInThread, To: []NodeType{NodeTypeThread}},
		{From: NodeTypeMessage, Relation: RelReplyTo, To: []NodeType{NodeTypeMessage}},
		{From: NodeTypeMessage, Relation: RelMentions, To: []NodeType{NodeTypePerson, NodeTypeTopic, NodeTypeDocument}},
		{From: NodeTypeMessage, Relation: RelDiscusses, To: []NodeType{NodeTypeTopic}},
		{From: NodeTypeMessage, Relation: RelPartOf, To: []NodeType{NodeTypeSession}},
		{From: NodeTypeMessage, Relation: RelHasAttachment, To: []NodeType{NodeTypeAttachment, NodeTypeDocument}},
		{From: NodeTypeMessage, Relation: RelRelatedTo, To: []NodeType{NodeTypeEvent, NodeTypeTask, NodeTypeDocument}},

		// e-mail
		{From: NodeTypeEmail, Relation: RelSentBy, To: []NodeType{NodeTypePerson}},
		{From: NodeTypeEmail, Relation: RelSentTo, To: []NodeType{NodeTypePerson}},
		{From: NodeTypeEmail, Relation: RelCC, To: []NodeType{NodeTypePerson}},
		{From: NodeTypeEmail, Relation: RelInThread, To: []NodeType{NodeTypeThread}},
		{From: NodeTypeEmail, Relation: RelReplyTo, To: []NodeType{NodeTypeEmail}},
		{From: NodeTypeEmail, Relation: RelHasAttachment, To: []NodeType{NodeTypeAttachment, NodeTypeDocument, NodeTypeReceipt}},
		{From: NodeTypeEmail, Relation: RelMentions, To: []NodeType{NodeTypePerson, NodeTypeTopic, NodeTypeOrganization}},
		{From: NodeTypeEmail, Relation: RelDiscusses, To: []NodeType{NodeTypeTopic}},
		{From: NodeTypeEmail, Relation: RelRelatedTo, To: []NodeType{NodeTypeEvent, NodeTypeTask}},

		// people
		{From: NodeTypePerson, Relation: RelMemberOf, To: []NodeType{NodeTypeOrganization, NodeTypeChannel, NodeTypeProject}},
		{From: NodeTypePerson, Relation: RelWorksWith, To: []NodeType{NodeTypePerson}},
		{From: NodeTypePerson, Relation: RelKnows, To: []NodeType{NodeTypePerson}},
		{From: NodeTypePerson, Relation: RelSameAs, To: []NodeType{NodeTypePerson}},
		{From: NodeTypePerson, Relation: RelAttends, To: []NodeType{NodeTypeEvent}},
		{From: NodeTypePerson, Relation: RelAuthored, To: []NodeType{NodeTypeDocument, NodeTypeNote}},

		// documents and attachments
		{From: NodeTypeDocument, Relation: RelDiscusses, To: []NodeType{NodeTypeTopic}},
		{From: NodeTypeDocument, Relation: RelMentions, To: []NodeType{NodeTypePerson, NodeTypeTopic, NodeTypeOrganization}},
		{From: NodeTypeDocument, Relation: RelReferences, To: []NodeType{NodeTypeDocument}},
		{From: NodeTypeDocument, Relation: RelAttachedTo, To: []NodeType{NodeTypeMessage, NodeTypeEmail, NodeTypeEvent}},
		{From: NodeTypeDocument, Relation: RelPartOf, To: []NodeType{NodeTypeProject}},
		{From: NodeTypeAttachment, Relation: RelAttachedTo, To: []NodeType{NodeTypeMessage, NodeTypeEmail}},
		{From: NodeTypeAttachment, Relation: RelSameAs, To: []NodeType{NodeTypeDocument}},

		// events
		{From: NodeTypeEvent, Relation: RelAttendedBy, To: []NodeType{NodeTypePerson}},
		{From: NodeTypeEvent, Relation: RelAbout, To: []NodeType{NodeTypeTopic, NodeTypeProject}},
		{From: NodeTypeEvent, Relation: RelLocatedAt, To: []NodeType{NodeTypeLocation}},
		{From: NodeTypeEvent, Relation: RelPrecedes, To: []NodeType{NodeTypeEvent}},
		{From: NodeTypeEvent, Relation: RelFollows, To: []NodeType{NodeTypeEvent}},
		{From: NodeTypeEvent, Relation: RelRelatedTo, To: []NodeType{NodeTypeDocument, NodeTypeTask}},

		// topics and sessions
		{From: NodeTypeTopic, Relation: RelRelatedTo, To: []NodeType{NodeTypeTopic}},
		{From: NodeTypeTopic, Relation: RelSubtopicOf, To: []NodeType{NodeTypeTopic}},
		{From: NodeTypeSession, Relation: RelContains, To: []NodeType{NodeTypeMessage}},
		{From: NodeTypeSession, Relation: RelAbout, To: []NodeType{NodeTypeTopic}},
		{From: NodeTypeThread, Relation: RelInChannel, To: []NodeType{NodeTypeChannel}},
		{From: NodeTypeThread, Relation: RelAbout, To: []NodeType{NodeTypeTopic}},

		// tasks and projects
		{From: NodeTypeTask, Relation: RelDependsOn, To: []NodeType{NodeTypeTask}},
		{From: NodeTypeTask, Relation: RelBlocks, To: []NodeType{NodeTypeTask}},
		{From: NodeTypeTask, Relation: RelAssignedTo, To: []NodeType{NodeTypePerson}},
		{From: NodeTypeTask, Relation: RelPartOf, To: []NodeType{NodeTypeProject}},
		{From: NodeTypeTask, Relation: RelDueBefore, To: []NodeType{NodeTypeEvent}},
		{From: NodeTypeTask, Relation: RelRelatedTo, To: []NodeType{NodeTypeDocument, NodeTypeEvent, NodeTypeMessage, NodeTypeEmail}},
		{From: NodeTypeProject, Relation: RelAbout, To: []NodeType{NodeTypeTopic}},

		// receipts
		{From: NodeTypeReceipt, Relation: RelIssuedBy, To: []NodeType{NodeTypeOrganization}},
		{From: NodeTypeReceipt, Relation: RelPaidBy, To: []NodeType{NodeTypePerson}},
		{From: NodeTypeReceipt, Relation: RelAttachedTo, To: []NodeType{NodeTypeEmail}},

		// notes
		{From: NodeTypeNote, Relation: RelAbout, To: []NodeType{NodeTypeTopic, NodeTypePerson, NodeTypeProject}},
		{From: NodeTypeNote, Relation: RelMentions, To: []NodeType{NodeTypePerson, NodeTypeTopic}},

		// organizations and locations
		{From: NodeTypeOrganization, Relation: RelLocatedAt, To: []NodeType{NodeTypeLocation}},
	}
}

// Default returns the built-in personal knowledge graph schema.
func Default() *Schema {
	s, err := New(DefaultNodeSpecs(), DefaultPropertySpecs(), DefaultRelationshipRules(), DefaultStatuses)
	if err != nil {
		// The built-in tables are static; a failure here is a programming error.
		panic("schema: invalid default tables: " + err.Error())
	}
	return s
}
