// Package topicnote wires the topicnote packages into the server and the
// command line client.
//
// The server keeps every user's topics and shares in PostgreSQL and exposes
// them over a JSON API behind JWT sessions, plus a websocket that announces
// changes. See [App.Serve] for the endpoints.
//
// The client keeps a SQLite copy of the signed-in user's topics and reconciles
// it with the server through the sync engine. Topics can be created and listed
// offline; they reach the server on the next sync.
//
// # Getting Started
//
//	# Server
//	export JWT_SECRET=change-me
//	topicnote migrate
//	topicnote serve
//
//	# Client
//	topicnote -email ana@example.com -password secret sync
//	topicnote add -title "Reforma tributária" -tags economia
//	topicnote add -template debate
//	topicnote tree
//	topicnote sync -watch
//
// See [Main] for configuration.
package topicnote
