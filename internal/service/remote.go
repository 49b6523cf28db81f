package service

import (
	"context"
	"net/url"

	"github.com/invenhost/inventree-shopify/internal/shopify"
)

// RemoteClient is the Shopify REST surface the services need.
// *shopify.Client implements it.
type RemoteClient interface {
	Call(ctx context.Context, method, endpoint string, params url.Values, body any) (*shopify.Response, error)
}
