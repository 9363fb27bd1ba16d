package attachment

import (
	"context"
	"log/slog"

	"github.com/kaenova/chatd/src/aisdk"
)

// LinkSigner mints a time-limited serving link for a stored blob.
type LinkSigner interface {
	SignedURL(name string) (string, error)
}

// Resolver rewrites chatbot:// image parts into signed blob links before a
// model call. Unresolvable references are left untouched so the stored
// indirect form survives and a later call can retry.
type Resolver struct {
	db     *DB
	links  LinkSigner
	owner  string
	logger *slog.Logger
}

func NewResolver(db *DB, links LinkSigner, owner string, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{db: db, links: links, owner: owner, logger: logger}
}

// Resolve returns a copy of msgs with every resolvable chatbot:// image part
// replaced by a signed link. The input is not mutated.
func (r *Resolver) Resolve(ctx context.Context, msgs []*aisdk.Message) []*aisdk.Message {
	out := make([]*aisdk.Message, len(msgs))
	for i, m := range msgs {
		out[i] = r.resolveMessage(ctx, m)
	}
	return out
}

func (r *Resolver) resolveMessage(ctx context.Context, m *aisdk.Message) *aisdk.Message {
	resolved := m
	for i, p := range m.Parts {
		if p.Type != aisdk.PartTypeImage {
			continue
		}
		id, ok := ParseRef(p.Image)
		if !ok {
			continue
		}
		link, err := r.resolveLink(ctx, id)
		if err != nil {
			r.logger.Warn("leaving attachment reference unresolved",
				"attachment_id", id, "error", err)
			continue
		}
		if resolved == m {
			resolved = m.Clone()
		}
		resolved.Parts[i].Image = link
	}
	return resolved
}

func (r *Resolver) resolveLink(ctx context.Context, id string) (string, error) {
	att, err := GetByID(ctx, r.db.DB(), r.owner, id)
	if err != nil {
		return "", err
	}
	if att == nil {
		return "", ErrNotFound
	}
	return r.links.SignedURL(att.BlobName)
}
