// Package tracking turns ad-markup beacons (view pixels and click
// redirects) into ingested events.
package tracking

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/radiusdt/adpulse/internal/analytics"
	"go.uber.org/zap"
)

// Recorder is the single-event ingest path.
type Recorder interface {
	RecordEvent(ctx context.Context, in analytics.EventInput) (*analytics.RecordResult, error)
}

// DeviceDetector maps a user agent to a device label.
type DeviceDetector interface {
	Parse(userAgent string) string
}

// TrackingService records beacon hits through the regular ingest path so
// tracked traffic lands in the same aggregates as API traffic.
type TrackingService struct {
	recorder     Recorder
	deviceDetect DeviceDetector
	logger       *zap.Logger
	baseURL      string
}

func NewTrackingService(recorder Recorder, deviceDetect DeviceDetector, baseURL string, logger *zap.Logger) *TrackingService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deviceDetect == nil {
		deviceDetect = UserAgentDetector{}
	}
	return &TrackingService{
		recorder:     recorder,
		deviceDetect: deviceDetect,
		logger:       logger,
		baseURL:      strings.TrimRight(baseURL, "/"),
	}
}

// ViewParams holds parameters for view registration. Device is detected
// from UserAgent when empty.
type ViewParams struct {
	AdID      string
	Device    string
	Region    string
	IP        string
	UserAgent string
}

// RegisterView records one impression and returns its event id.
func (s *TrackingService) RegisterView(ctx context.Context, params *ViewParams) (string, error) {
	res, err := s.recorder.RecordEvent(ctx, analytics.EventInput{
		AdID:   params.AdID,
		Device: s.device(params.Device, params.UserAgent),
		Region: params.Region,
		IP:     params.IP,
	})
	if err != nil {
		return "", err
	}

	s.logger.Debug("view registered",
		zap.String("event_id", res.EventID),
		zap.String("ad_id", params.AdID),
	)
	return res.EventID, nil
}

// ClickParams holds parameters for click registration. TargetURL may carry
// macros that are filled from the recorded event.
type ClickParams struct {
	AdID      string
	Device    string
	Region    string
	IP        string
	UserAgent string
	TargetURL string
}

// ClickResult holds the result of click registration
type ClickResult struct {
	EventID     string
	RedirectURL string
}

// RegisterClick records one click and resolves the landing URL. The
// target is checked before anything is recorded.
func (s *TrackingService) RegisterClick(ctx context.Context, params *ClickParams) (*ClickResult, error) {
	if err := checkTarget(params.TargetURL); err != nil {
		return nil, err
	}

	device := s.device(params.Device, params.UserAgent)
	res, err := s.recorder.RecordEvent(ctx, analytics.EventInput{
		AdID:    params.AdID,
		IsClick: true,
		Device:  device,
		Region:  params.Region,
		IP:      params.IP,
	})
	if err != nil {
		return nil, err
	}

	redirectURL := expandMacros(params.TargetURL, map[string]string{
		"{event_id}":  res.EventID,
		"{click_id}":  res.EventID,
		"{ad_id}":     params.AdID,
		"{device}":    device,
		"{region}":    params.Region,
		"{timestamp}": strconv.FormatInt(res.Timestamp, 10),
	})

	s.logger.Info("click registered",
		zap.String("event_id", res.EventID),
		zap.String("ad_id", params.AdID),
		zap.String("redirect_url", redirectURL),
	)
	return &ClickResult{EventID: res.EventID, RedirectURL: redirectURL}, nil
}

func (s *TrackingService) device(explicit, userAgent string) string {
	if explicit != "" {
		return explicit
	}
	if userAgent == "" {
		return ""
	}
	return s.deviceDetect.Parse(userAgent)
}

// BuildViewURL builds the view pixel URL for use in ad markup
func (s *TrackingService) BuildViewURL(adID string) string {
	q := url.Values{}
	q.Set("ad_id", adID)
	return s.baseURL + "/v1/track/view?" + q.Encode()
}

// BuildClickURL builds the click redirect URL for use in ad markup
func (s *TrackingService) BuildClickURL(adID, targetURL string) string {
	q := url.Values{}
	q.Set("ad_id", adID)
	q.Set("url", targetURL)
	return s.baseURL + "/v1/track/click?" + q.Encode()
}

// checkTarget only allows absolute http(s) landing pages.
func checkTarget(target string) error {
	if target == "" {
		return fmt.Errorf("%w: url is required", analytics.ErrInvalidInput)
	}
	u, err := url.Parse(target)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("%w: url must be an absolute http(s) URL", analytics.ErrInvalidInput)
	}
	return nil
}

func expandMacros(target string, values map[string]string) string {
	for macro, value := range values {
		target = strings.ReplaceAll(target, macro, url.QueryEscape(value))
	}
	return target
}

// UserAgentDetector classifies user agents into desktop, mobile and tablet.
type UserAgentDetector struct{}

func (UserAgentDetector) Parse(userAgent string) string {
	ua := strings.ToLower(userAgent)
	switch {
	case strings.Contains(ua, "ipad") || strings.Contains(ua, "tablet") ||
		(strings.Contains(ua, "android") && !strings.Contains(ua, "mobile")):
		return "tablet"
	case strings.Contains(ua, "mobi") || strings.Contains(ua, "iphone") || strings.Contains(ua, "android"):
		return "mobile"
	default:
		return "desktop"
	}
}

// TransparentPixel is a 1x1 transparent GIF
var TransparentPixel = []byte{
	0x47, 0x49, 0x46, 0x38, 0x39, 0x61, 0x01, 0x00,
	0x01, 0x00, 0x80, 0x00, 0x00, 0xFF, 0xFF, 0xFF,
	0x00, 0x00, 0x00, 0x21, 0xF9, 0x04, 0x01, 0x00,
	0x00, 0x00, 0x00, 0x2C, 0x00, 0x00, 0x00, 0x00,
	0x01, 0x00, 0x01, 0x00, 0x00, 0x02, 0x02, 0x44,
	0x01, 0x00, 0x3B,
}
