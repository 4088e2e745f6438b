package pool

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/peercache/go-peercache/apierror"
	"github.com/peercache/go-peercache/cache"
	"github.com/peercache/go-peercache/peer"
)

// httpClient speaks the peer wire protocol to one remote endpoint: a single
// form-encoded POST per key, answered with the raw payload bytes.
type httpClient struct {
	endpoint peer.Endpoint
	url      string
	client   *http.Client
}

var _ peer.Client = (*httpClient)(nil)

func newHTTPClient(ep peer.Endpoint, client *http.Client) *httpClient {
	return &httpClient{
		endpoint: ep,
		url:      "http://" + ep.String() + GetPath,
		client:   client,
	}
}

func (c *httpClient) Get(ctx context.Context, group, key string, sink io.Writer, cc *cache.Control) error {
	form := url.Values{
		formGroupName: {group},
		formKey:       {key},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: %s", apierror.ErrConnectFailure, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 8192))
		return apierror.FromResponse(resp.StatusCode, body)
	}

	if cc != nil && strings.Contains(resp.Header.Get("Cache-Control"), "no-store") {
		cc.SetNoStore()
	}

	if err = copyBody(ctx, sink, resp.Body); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: reading response body: %s", apierror.ErrConnectFailure, err)
	}
	return nil
}

func (c *httpClient) IsLocal() bool {
	return false
}

func (c *httpClient) Endpoint() peer.Endpoint {
	return c.endpoint
}

// copyBody copies the response body to sink, checking ctx between chunks so
// a cancelled caller stops the transfer.
func copyBody(ctx context.Context, dst io.Writer, src io.Reader) error {
	buf := make([]byte, 32*1024)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}
