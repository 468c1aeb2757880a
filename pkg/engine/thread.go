package engine

import (
	"context"
	"fmt"

	"github.com/Hubmakerlabs/nostrengine/pkg/errs"
	"github.com/Hubmakerlabs/nostrengine/pkg/eventstore"
	"github.com/Hubmakerlabs/nostrengine/pkg/thread"
)

// resolver reads threads from the store and, once Init has run, fetches
// what is missing from the read relays.
func (e *Engine) resolver() (r *thread.Resolver, err error) {
	var s eventstore.Store
	if s, err = e.db(); err != nil {
		return
	}
	r = &thread.Resolver{Store: s, Timeout: e.cfg.FetchTimeout}
	if p, perr := e.relays(); perr == nil {
		r.Fetcher = p
	}
	return
}

// ResolveRoot walks up the replies from noteID and returns the id of the
// thread root, or the last note it could reach.
func (e *Engine) ResolveRoot(c context.Context, noteID string) (root string, err error) {
	var r *thread.Resolver
	if r, err = e.resolver(); err != nil {
		return
	}
	return r.ResolveRoot(c, noteID)
}

// SyncReplies fetches the replies under noteID down to depth levels, or the
// configured thread depth when depth is not positive.
func (e *Engine) SyncReplies(c context.Context, noteID string, depth int) (fetched int, err error) {
	var r *thread.Resolver
	if r, err = e.resolver(); err != nil {
		return
	}
	if depth <= 0 {
		depth = e.cfg.ThreadDepth
	}
	return r.SyncReplies(c, noteID, depth)
}

// Thread arranges the stored replies under rootID into a tree.
func (e *Engine) Thread(c context.Context, rootID string) (t thread.Tree, err error) {
	var s eventstore.Store
	if s, err = e.db(); err != nil {
		return
	}
	root, replies, err := thread.Collect(c, s, rootID)
	if err != nil {
		return
	}
	if root == nil {
		return t, fmt.Errorf("thread root %s is not stored: %w", rootID, errs.InvalidInput)
	}
	return thread.BuildTree(root, replies), nil
}
