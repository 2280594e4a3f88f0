package pushbus

import (
	"log/slog"

	"shiplink/internal/domain"
)

// Router groups the topics the connection controller publishes to.
type Router struct {
	// Connection carries true on Ready and false on every drop.
	Connection *Topic[bool]
	// User carries the user of each successful handshake.
	User *Topic[domain.User]
	// Chat carries each chat push, possibly with zero items.
	Chat *Topic[[]domain.ChatItem]
	// HostClosing fires when the host bridge reports the hosting process is
	// shutting down.
	HostClosing *Topic[struct{}]
}

// NewRouter creates a router with empty topics.
func NewRouter(log *slog.Logger) *Router {
	return &Router{
		Connection:  NewTopic[bool]("connection", log),
		User:        NewTopic[domain.User]("user", log),
		Chat:        NewTopic[[]domain.ChatItem]("chat", log),
		HostClosing: NewTopic[struct{}]("host_closing", log),
	}
}

// Close closes every topic.
func (r *Router) Close() {
	r.Connection.Close()
	r.User.Close()
	r.Chat.Close()
	r.HostClosing.Close()
}
