package dav

import (
	"context"

	"github.com/samber/mo"
)

// GetCtag PROPFINDs {CS}getctag at depth 0. Per spec §4.2, a missing
// property is a successful "no value," not an error — mo.Option threads
// that distinction through without resorting to a nil-able pointer.
func (c *Client) GetCtag(ctx context.Context, url string, opts ParseOptions) (mo.Option[string], error) {
	return c.getSingleProp(ctx, url, PropGetCTag, opts)
}

// GetSyncToken PROPFINDs {DAV:}sync-token at depth 0.
func (c *Client) GetSyncToken(ctx context.Context, url string, opts ParseOptions) (mo.Option[string], error) {
	return c.getSingleProp(ctx, url, PropSyncToken, opts)
}

func (c *Client) getSingleProp(ctx context.Context, url string, name PropName, opts ParseOptions) (mo.Option[string], error) {
	ms, err := c.Propfind(ctx, url, Depth0, []PropName{name}, opts)
	if err != nil {
		return mo.None[string](), err
	}
	if len(ms.Responses) == 0 {
		return mo.None[string](), nil
	}
	if v, ok := ms.Responses[0].Text(name); ok && v != "" {
		return mo.Some(v), nil
	}
	return mo.None[string](), nil
}
