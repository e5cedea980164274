package sdk

import (
	"context"
	"net/url"
)

// OnlineCount counts the distinct active participants that are online.
// scope is ScopeAnywhere (the default when empty) or ScopeViewing.
func (c *Client) OnlineCount(ctx context.Context, conversationId, scope string) (int, error) {
	params := url.Values{"conversation_id": {conversationId}}
	if scope != "" {
		params.Set("scope", scope)
	}
	var result OnlineCountResponse
	if err := c.get(ctx, "/presence/online_count", params, &result); err != nil {
		return 0, err
	}
	return result.Count, nil
}
