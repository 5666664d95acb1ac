package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"golang.org/x/time/rate"

	"marketsync/pkg/logger"
	"marketsync/pkg/models"
)

// Client talks to the marketplace backend over HTTP. It implements both
// OfferBackend and ThreadBackend. Outbound calls share one rate limiter so
// a large sync sweep cannot hammer the backend.
type Client struct {
	base    string
	token   string
	http    *fasthttp.Client
	limiter *rate.Limiter
}

// NewClient builds a client for the backend at base. rps/burst bound the
// outbound request rate; zero rps disables limiting.
func NewClient(base, token string, rps float64, burst int) *Client {
	lim := rate.NewLimiter(rate.Inf, 0)
	if rps > 0 {
		if burst <= 0 {
			burst = 1
		}
		lim = rate.NewLimiter(rate.Limit(rps), burst)
	}
	return &Client{
		base:  strings.TrimRight(base, "/"),
		token: token,
		http: &fasthttp.Client{
			Name:         "marketsync",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		limiter: lim,
	}
}

func kindPath(kind models.Kind) string {
	if kind == models.KindItem {
		return "items"
	}
	return "meals"
}

// doJSON performs one HTTP exchange. out may be nil when the response body
// is not needed.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.Header.SetMethod(method)
	req.SetRequestURI(c.base + path)
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		req.Header.SetContentType("application/json")
		req.SetBody(data)
	}
	if err := c.http.Do(req, resp); err != nil {
		return err
	}
	if sc := resp.StatusCode(); sc < 200 || sc > 299 {
		return fmt.Errorf("backend returned %d for %s %s", sc, method, path)
	}
	if out != nil {
		if err := json.Unmarshal(resp.Body(), out); err != nil {
			return fmt.Errorf("decode response for %s %s: %w", method, path, err)
		}
	}
	return nil
}

// Create posts a new offer and returns the backend id and canonical status.
func (c *Client) Create(ctx context.Context, offer models.Offer) (CreateResult, error) {
	var payload any
	switch offer.Kind {
	case models.KindMeal:
		payload = map[string]any{
			"meals":     offer.Meals,
			"location":  offer.Location,
			"price":     offer.Price,
			"meal_type": offer.MealType,
		}
	case models.KindItem:
		payload = map[string]any{
			"name":         offer.Name,
			"category":     offer.Category,
			"price":        offer.Price,
			"img_data_url": offer.Img,
			"baseline":     offer.Baseline,
		}
	default:
		return CreateResult{}, fmt.Errorf("unknown offer kind: %q", offer.Kind)
	}
	var resp struct {
		ID     json.Number `json:"id"`
		Status string      `json:"status"`
	}
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/offers/"+kindPath(offer.Kind), payload, &resp); err != nil {
		return CreateResult{}, err
	}
	return CreateResult{ID: resp.ID.String(), Status: models.Status(resp.Status)}, nil
}

// Accept marks a remote offer accepted.
func (c *Client) Accept(ctx context.Context, kind models.Kind, remoteID, message string) error {
	path := fmt.Sprintf("/offers/%s/%s/accept", kindPath(kind), remoteID)
	return c.doJSON(ctx, fasthttp.MethodPost, path, map[string]string{"message": message}, nil)
}

// Cancel cancels a remote offer.
func (c *Client) Cancel(ctx context.Context, kind models.Kind, remoteID string) error {
	path := fmt.Sprintf("/offers/%s/%s", kindPath(kind), remoteID)
	return c.doJSON(ctx, fasthttp.MethodDelete, path, nil, nil)
}

// AdjustUsage reports a meal-plan usage delta to the backend.
func (c *Client) AdjustUsage(ctx context.Context, mealsDelta int, note string) error {
	return c.doJSON(ctx, fasthttp.MethodPost, "/usage/adjust",
		map[string]any{"meals_used_delta": mealsDelta, "note": note}, nil)
}

// ListThreads fetches the backend's thread listing for the current identity.
func (c *Client) ListThreads(ctx context.Context) ([]RemoteThread, error) {
	var raw []struct {
		ID        json.Number `json:"id"`
		Kind      string      `json:"kind"`
		ListingID json.Number `json:"listing_id"`
	}
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/inbox/threads", nil, &raw); err != nil {
		return nil, err
	}
	out := make([]RemoteThread, 0, len(raw))
	for _, t := range raw {
		out = append(out, RemoteThread{ID: t.ID.String(), Kind: models.Kind(t.Kind), ListingID: t.ListingID.String()})
	}
	return out, nil
}

// AppendMessage mirrors a locally appended message to its remote thread.
func (c *Client) AppendMessage(ctx context.Context, remoteThreadID, body string) error {
	path := fmt.Sprintf("/inbox/threads/%s/messages", remoteThreadID)
	if err := c.doJSON(ctx, fasthttp.MethodPost, path, map[string]string{"body": body}, nil); err != nil {
		logger.Warn("message_mirror_failed", "thread", remoteThreadID, "error", err)
		return err
	}
	return nil
}

var (
	_ OfferBackend  = (*Client)(nil)
	_ ThreadBackend = (*Client)(nil)
)
