package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/topicnote/topicnote/pkg/topicnote"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := topicnote.Main(ctx, os.Args[1:]); err != nil {
		stop()
		log.Fatal(err)
	}
}
