package service

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"ServerMonitorAPI/internal/logger"
	"ServerMonitorAPI/internal/models"
	"ServerMonitorAPI/internal/resilience"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	ServerServiceName = "server-service"
	UserServiceName   = "user-service"

	serverNameCacheSize = 1024
	serverNameTTL       = 5 * time.Minute
)

// IDirectory resolves display names and contact addresses owned by sibling
// services. Lookups never fail: an unreachable service degrades to the ID.
type IDirectory interface {
	ServerName(ctx context.Context, serverID string) string
	Contact(ctx context.Context, userID string, channel models.ChannelKind) Contact
}

// Contact is where one channel's notification goes. Carrier is only set for
// SMS and selects the email-to-SMS gateway.
type Contact struct {
	Address string
	Carrier string
}

type serverInfo struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type contactInfo struct {
	Email      string `json:"email"`
	Phone      string `json:"phone"`
	WebhookURL string `json:"webhook_url"`
	Carrier    string `json:"carrier"`
}

// Directory caches resolved server names; fallbacks are never cached so a
// recovered server service is picked up on the next lookup.
type Directory struct {
	servers *resilience.ServiceClient
	users   *resilience.ServiceClient
	names   *expirable.LRU[string, string]
	log     *logger.Logger
}

// NewDirectory looks up the server and user service clients in registry.
// Either may be missing, in which case lookups fall back immediately.
func NewDirectory(registry *resilience.Registry, log *logger.Logger) *Directory {
	d := &Directory{
		names: expirable.NewLRU[string, string](serverNameCacheSize, nil, serverNameTTL),
		log:   log,
	}
	if registry != nil {
		d.servers, _ = registry.Client(ServerServiceName)
		d.users, _ = registry.Client(UserServiceName)
	}
	if d.servers == nil {
		log.Warn("No %s configured, alert messages will use server IDs", ServerServiceName)
	}
	if d.users == nil {
		log.Warn("No %s configured, notifications will be addressed to user IDs", UserServiceName)
	}
	return d
}

func (d *Directory) ServerName(ctx context.Context, serverID string) string {
	if d.servers == nil {
		return serverID
	}
	if name, ok := d.names.Get(serverID); ok {
		return name
	}

	var info serverInfo
	path := fmt.Sprintf("/api/v1/servers/%s", url.PathEscape(serverID))

	err := d.servers.GetJSON(ctx, path, &info, func(cause error) error {
		d.log.Debug("Server name lookup for %s fell back: %v", serverID, cause)
		info = serverInfo{}
		return nil
	})
	if err != nil || info.Name == "" {
		return serverID
	}
	d.names.Add(serverID, info.Name)
	return info.Name
}

func (d *Directory) Contact(ctx context.Context, userID string, channel models.ChannelKind) Contact {
	fallback := Contact{Address: userID}
	if d.users == nil {
		return fallback
	}

	var info contactInfo
	path := fmt.Sprintf("/api/v1/users/%s/contact", url.PathEscape(userID))

	err := d.users.GetJSON(ctx, path, &info, func(cause error) error {
		d.log.Debug("Contact lookup for %s fell back: %v", userID, cause)
		info = contactInfo{}
		return nil
	})
	if err != nil {
		return fallback
	}

	var contact Contact
	switch channel {
	case models.ChannelEmail:
		contact.Address = info.Email
	case models.ChannelSMS:
		contact.Address = info.Phone
		contact.Carrier = info.Carrier
	case models.ChannelWebhook:
		contact.Address = info.WebhookURL
	}
	if contact.Address == "" {
		return fallback
	}
	return contact
}
