package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"alarm-gateway/pkg/pagination"
)

// vendorLookupEntry is one paginated vendor-lookup response row.
type vendorLookupEntry struct {
	Name string `json:"name"`
	ID   int    `json:"id"`
}

type vendorLookupPage struct {
	Items []vendorLookupEntry `json:"items"`
	Total int                 `json:"total"`
}

// NewHTTPVendorLookup returns a VendorLookup that issues paginated GET
// requests against the same vendor host the alarm POST targets, one path
// segment per auxiliary category (labels, units, scenarios, templates),
// grounded on the same request/response idiom as RestSender.Send itself.
func NewHTTPVendorLookup(endpoint, apiToken string) (VendorLookup, error) {
	base, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parsing rest vendor endpoint: %w", err)
	}
	client := &http.Client{Timeout: 15 * time.Second}

	return func(ctx context.Context, category string, page, pageSize int) (map[string]int, int, error) {
		u := *base
		u.Path = fmt.Sprintf("/api/v1/%s", category)
		q := u.Query()
		q.Set("page", strconv.Itoa(pagination.NormalizePage(page)))
		q.Set("pageSize", strconv.Itoa(pagination.NormalizePageSize(pageSize)))
		u.RawQuery = q.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
		if err != nil {
			return nil, 0, fmt.Errorf("building vendor lookup request for %s: %w", category, err)
		}
		req.Header.Set("API-Token", apiToken)

		resp, err := client.Do(req)
		if err != nil {
			return nil, 0, fmt.Errorf("vendor lookup for %s unreachable: %w", category, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= 300 {
			return nil, 0, fmt.Errorf("vendor lookup for %s responded HTTP %d", category, resp.StatusCode)
		}

		var decoded vendorLookupPage
		if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
			return nil, 0, fmt.Errorf("decoding vendor lookup response for %s: %w", category, err)
		}
		out := make(map[string]int, len(decoded.Items))
		for _, item := range decoded.Items {
			out[item.Name] = item.ID
		}
		return out, decoded.Total, nil
	}, nil
}
