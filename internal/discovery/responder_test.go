package discovery

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nerrad567/garage-bridge/internal/infrastructure/config"
)

func TestNew(t *testing.T) {
	tests := []struct {
		mode    string
		check   func(Responder) bool
		wantErr error
	}{
		{mode: config.DiscoveryModeSSDP, check: func(r Responder) bool { s, ok := r.(*SSDP); return ok && s.advertise }},
		{mode: config.DiscoveryModeListen, check: func(r Responder) bool {
			l, ok := r.(*listenResponder)
			return ok && !l.ssdp.advertise && l.ssdp.announcer == l.announcer
		}},
		{mode: config.DiscoveryModeMDNS, check: func(r Responder) bool { _, ok := r.(*MDNS); return ok }},
		{mode: config.DiscoveryModeOff, check: func(r Responder) bool { _, ok := r.(idle); return ok }},
		{mode: "bonjour", wantErr: ErrUnknownMode},
	}

	for _, tt := range tests {
		t.Run(tt.mode, func(t *testing.T) {
			r, err := New(Options{Mode: tt.mode, Info: testInfo, MDNSService: "_garagebridge._tcp", Instance: "gb"})
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("New() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			if !tt.check(r) {
				t.Errorf("New(%q) returned %T", tt.mode, r)
			}
		})
	}
}

func TestIdle_StopsWithContext(t *testing.T) {
	r, err := New(Options{Mode: config.DiscoveryModeOff})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := r.Run(ctx); err != nil {
		t.Errorf("Run() error = %v", err)
	}
}
