package bamboo

import (
	"io"

	"github.com/sirupsen/logrus"
)

// Config controls Writer and Replica behavior.
type Config struct {
	// Logger receives structured events. Nil discards them.
	Logger *logrus.Logger
	// VerifyWorkers bounds the goroutines VerifyFeed uses (0 = GOMAXPROCS).
	VerifyWorkers int
	// Keypair is the author identity a Writer publishes with. Replicas
	// ignore it.
	Keypair *Keypair
}

func (c Config) logger() *logrus.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func feedFields(feed FeedID, seq uint64) logrus.Fields {
	return logrus.Fields{
		"author": feed.Author.String(),
		"log_id": feed.LogID,
		"seq":    seq,
	}
}
