package view

import (
	"github.com/sirupsen/logrus"

	"token-dashboard-sync/internal/storage"
	"token-dashboard-sync/internal/tokensync"
	"token-dashboard-sync/internal/transport"
)

// Options for creating views.
type Options struct {
	// Required
	Channel transport.Channel
	Source  tokensync.Source
	Context *Context

	// Detail only: last-viewed persistence. Nil disables it.
	LastViewed storage.LastViewedStore
	Profile    string

	// Passed to every synchronizer the view creates.
	SyncOptions []tokensync.Option
	Logger      *logrus.Entry
}

func (o Options) logger() *logrus.Entry {
	if o.Logger != nil {
		return o.Logger
	}
	return logrus.NewEntry(logrus.StandardLogger())
}

func (o Options) profile() string {
	if o.Profile != "" {
		return o.Profile
	}
	return storage.DefaultProfile
}

func (o Options) syncOptions(log *logrus.Entry) []tokensync.Option {
	opts := make([]tokensync.Option, 0, len(o.SyncOptions)+1)
	opts = append(opts, tokensync.WithLogger(log))
	return append(opts, o.SyncOptions...)
}
