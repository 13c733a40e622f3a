package topicnote

// Command is one CLI operation with its own options.
//
// Parse returns one of the implementations below and [Main] dispatches on its
// concrete type to the matching [App] method.
type Command interface {
	// Name returns the sub-command name used on the command line.
	Name() string
}

// ServeCommand runs the HTTP server: the remote topic store, authentication,
// sharing and the websocket change feed.
//
// The server runs until its context is cancelled and then shuts down
// gracefully, giving in-flight requests up to five seconds.
//
// Example usage:
//
//	topicnote serve
//	topicnote -port 8090 serve
type ServeCommand struct{}

// Name returns "serve".
func (c *ServeCommand) Name() string { return "serve" }

// MigrateCommand creates or upgrades the server schema. It is safe to run more
// than once.
//
//	topicnote migrate
type MigrateCommand struct{}

// Name returns "migrate".
func (c *MigrateCommand) Name() string { return "migrate" }

// SyncCommand runs a client sync pass against a server.
//
// Before the pass the legacy file, if any, is imported into an empty local
// database. The command fails when the pass recorded an error, so it can be
// scripted.
//
// With Watch set the command keeps running: it follows the server's change
// feed, pulls whenever it announces a change and runs a full pass every sync
// interval.
//
// Example usage:
//
//	topicnote -remote-url http://localhost:8080 -email ana@example.com -password secret sync
//	topicnote sync -direction pull
//	topicnote sync -watch
type SyncCommand struct {
	// Direction is one of "full" (default), "push" or "pull".
	Direction string

	// Watch keeps the command running until interrupted.
	Watch bool
}

// Name returns "sync".
func (c *SyncCommand) Name() string { return "sync" }

// TreeCommand prints the local topic tree.
type TreeCommand struct {
	// Tag limits the output to topics carrying it, flat.
	Tag string

	// Tags prints every tag with the number of topics carrying it instead.
	Tags bool
}

// Name returns "tree".
func (c *TreeCommand) Name() string { return "tree" }

// AddCommand creates a topic in the local database and, when a session is
// configured, sends it to the server.
//
//	topicnote add -title "Reforma tributária" -tags economia,congresso
//	topicnote add -template debate -parent 5f0c...
type AddCommand struct {
	Title    string
	Content  string
	Tags     []string
	ParentID string
	// Template creates the topic from a template id instead of Title/Content/Tags.
	Template string
}

// Name returns "add".
func (c *AddCommand) Name() string { return "add" }
