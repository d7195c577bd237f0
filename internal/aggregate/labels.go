package aggregate

// Category orders highlight lines: content first, then identity,
// engagement, system, and finally anything unknown.
type Category int

const (
	CategoryContent Category = iota
	CategoryIdentity
	CategoryEngagement
	CategorySystem
	CategoryUnknown
)

// Label describes how one event type is rendered as a highlight line.
// The table is supplied from outside the aggregator so producers can
// introduce new event types without a code change here.
type Label struct {
	Singular string
	Plural   string
	Verb     string
	Category Category
}

// LabelTable maps event types to their highlight rendering.
type LabelTable map[string]Label

// DefaultLabels returns the label table for the built-in event types.
// Types not listed fall back to a generic phrasing.
func DefaultLabels() LabelTable {
	return LabelTable{
		"post_published": {Singular: "post", Plural: "posts", Verb: "published", Category: CategoryContent},
		"page_published": {Singular: "page", Plural: "pages", Verb: "published", Category: CategoryContent},
		"media_uploaded": {Singular: "media file", Plural: "media files", Verb: "uploaded", Category: CategoryContent},

		"user_registered": {Singular: "user", Plural: "users", Verb: "registered", Category: CategoryIdentity},
		"user_deleted":    {Singular: "user", Plural: "users", Verb: "removed", Category: CategoryIdentity},

		"comment_posted":   {Singular: "comment", Plural: "comments", Verb: "posted", Category: CategoryEngagement},
		"comment_approved": {Singular: "comment", Plural: "comments", Verb: "approved", Category: CategoryEngagement},
		"form_submitted":   {Singular: "form", Plural: "forms", Verb: "submitted", Category: CategoryEngagement},

		"backup_completed": {Singular: "backup", Plural: "backups", Verb: "completed", Category: CategorySystem},
		"plugin_activated": {Singular: "plugin", Plural: "plugins", Verb: "activated", Category: CategorySystem},
		"update_installed": {Singular: "update", Plural: "updates", Verb: "installed", Category: CategorySystem},
	}
}
