package netx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dmitrijs2005/idkeeper/internal/common"
)

// MaxJSONSize bounds response bodies decoded by GetJSON.
const MaxJSONSize = 64 << 10

// GetJSON fetches url and decodes a JSON body into out. Transport failures
// and non-200 answers wrap common.ErrorTransientNetwork, except 404 which
// wraps common.ErrorNotFound.
func GetJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrorTransientNetwork, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", common.ErrorNotFound, url)
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("%w: %s returned %s", common.ErrorTransientNetwork, url, resp.Status)
	}

	if err := json.NewDecoder(io.LimitReader(resp.Body, MaxJSONSize)).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", url, err)
	}
	return nil
}
