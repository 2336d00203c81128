package source

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// HTTPDate — резервный источник: заголовок Date ответа HTTP-сервера (точность — секунда).
// Работает там, где UDP/123 закрыт.
type HTTPDate struct {
	url     string
	timeout time.Duration
	client  *http.Client
}

// NewHTTPDate создаёт источник для url (HEAD-запрос).
func NewHTTPDate(url string, timeout time.Duration) *HTTPDate {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPDate{url: url, timeout: timeout, client: &http.Client{}}
}

func (h *HTTPDate) Name() string {
	return fmt.Sprintf("http:%s", h.url)
}

func (h *HTTPDate) Protocol() string {
	return "http"
}

// GetTime делает HEAD и возвращает Date, сдвинутый на половину RTT.
func (h *HTTPDate) GetTime(ctx context.Context) (time.Time, error) {
	ctx, cancel := context.WithDeadline(ctx, deadline(ctx, h.timeout))
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, h.url, nil)
	if err != nil {
		return time.Time{}, err
	}
	t1 := time.Now()
	resp, err := h.client.Do(req)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", h.Name(), err)
	}
	resp.Body.Close()
	rtt := time.Since(t1)
	date := resp.Header.Get("Date")
	if date == "" {
		return time.Time{}, fmt.Errorf("%s: no Date header: %w", h.Name(), ErrUnavailable)
	}
	t, err := http.ParseTime(date)
	if err != nil {
		return time.Time{}, fmt.Errorf("%s: %w", h.Name(), err)
	}
	return t.Add(rtt / 2).UTC(), nil
}

func (h *HTTPDate) Close() error {
	h.client.CloseIdleConnections()
	return nil
}
