package tracking

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/radiusdt/adpulse/internal/analytics"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRecorder struct {
	inputs []analytics.EventInput
	err    error
}

func (f *fakeRecorder) RecordEvent(_ context.Context, in analytics.EventInput) (*analytics.RecordResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.inputs = append(f.inputs, in)
	return &analytics.RecordResult{Success: true, EventID: "evt-1", Timestamp: 1700000000000}, nil
}

func TestRegisterView(t *testing.T) {
	rec := &fakeRecorder{}
	svc := NewTrackingService(rec, nil, "https://t.example.com", nil)

	id, err := svc.RegisterView(context.Background(), &ViewParams{
		AdID:      "ad-1",
		Region:    "Europe",
		UserAgent: "Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148",
	})
	require.NoError(t, err)
	assert.Equal(t, "evt-1", id)
	require.Len(t, rec.inputs, 1)
	assert.Equal(t, analytics.EventInput{AdID: "ad-1", Device: "mobile", Region: "Europe"}, rec.inputs[0])
}

func TestRegisterViewPropagatesNotFound(t *testing.T) {
	rec := &fakeRecorder{err: analytics.ErrNotFound}
	svc := NewTrackingService(rec, nil, "", nil)

	_, err := svc.RegisterView(context.Background(), &ViewParams{AdID: "missing"})
	assert.True(t, errors.Is(err, analytics.ErrNotFound))
}

func TestRegisterClick(t *testing.T) {
	rec := &fakeRecorder{}
	svc := NewTrackingService(rec, nil, "", nil)

	res, err := svc.RegisterClick(context.Background(), &ClickParams{
		AdID:      "ad-1",
		Device:    "desktop",
		TargetURL: "https://shop.example.com/landing?cid={click_id}&ad={ad_id}&ts={timestamp}",
	})
	require.NoError(t, err)
	assert.Equal(t, "evt-1", res.EventID)
	assert.Equal(t, "https://shop.example.com/landing?cid=evt-1&ad=ad-1&ts=1700000000000", res.RedirectURL)

	require.Len(t, rec.inputs, 1)
	assert.True(t, rec.inputs[0].IsClick)
	assert.Equal(t, "desktop", rec.inputs[0].Device)
}

func TestRegisterClickRejectsBadTarget(t *testing.T) {
	for _, target := range []string{"", "javascript:alert(1)", "/relative", "ftp://files.example.com"} {
		rec := &fakeRecorder{}
		svc := NewTrackingService(rec, nil, "", nil)

		_, err := svc.RegisterClick(context.Background(), &ClickParams{AdID: "ad-1", TargetURL: target})
		assert.True(t, errors.Is(err, analytics.ErrInvalidInput), target)
		assert.Empty(t, rec.inputs, target)
	}
}

func TestUserAgentDetector(t *testing.T) {
	tests := []struct {
		ua   string
		want string
	}{
		{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36", "desktop"},
		{"Mozilla/5.0 (iPhone; CPU iPhone OS 17_0 like Mac OS X) Mobile/15E148", "mobile"},
		{"Mozilla/5.0 (Linux; Android 14; Pixel 8) Mobile Safari/537.36", "mobile"},
		{"Mozilla/5.0 (iPad; CPU OS 17_0 like Mac OS X)", "tablet"},
		{"Mozilla/5.0 (Linux; Android 13; SM-X700) Safari/537.36", "tablet"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, UserAgentDetector{}.Parse(tt.ua), tt.ua)
	}
}

func TestBuildURLs(t *testing.T) {
	svc := NewTrackingService(&fakeRecorder{}, nil, "https://t.example.com/", nil)

	assert.Equal(t, "https://t.example.com/v1/track/view?ad_id=ad-1", svc.BuildViewURL("ad-1"))

	u, err := url.Parse(svc.BuildClickURL("ad-1", "https://shop.example.com/?a=b"))
	require.NoError(t, err)
	assert.Equal(t, "/v1/track/click", u.Path)
	assert.Equal(t, "ad-1", u.Query().Get("ad_id"))
	assert.Equal(t, "https://shop.example.com/?a=b", u.Query().Get("url"))
}
