package bot

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"activity-xp/internal/errs"

	"github.com/bwmarrin/discordgo"
)

func restError(status, code int) error {
	return &discordgo.RESTError{
		Response: &http.Response{StatusCode: status},
		Message:  &discordgo.APIErrorMessage{Code: code, Message: "test"},
	}
}

func TestClassifyRESTError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want errs.Kind
	}{
		{"unknown role", restError(http.StatusNotFound, discordgo.ErrCodeUnknownRole), errs.KindDataIntegrity},
		{"missing permissions", restError(http.StatusForbidden, discordgo.ErrCodeMissingPermissions), errs.KindPermission},
		{"forbidden without code", restError(http.StatusForbidden, 0), errs.KindPermission},
		{"rate limited", restError(http.StatusTooManyRequests, 0), errs.KindTransient},
		{"server error", restError(http.StatusBadGateway, 0), errs.KindTransient},
		{"unknown member", restError(http.StatusNotFound, discordgo.ErrCodeUnknownMember), errs.KindUnknown},
		{"deadline", fmt.Errorf("request: %w", context.DeadlineExceeded), errs.KindTransient},
		{"network", errors.New("connection reset by peer"), errs.KindTransient},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := errs.KindOf(classifyRESTError("add role", tc.err))
			if got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestIsUnknownChannel(t *testing.T) {
	if !isUnknown(restError(http.StatusNotFound, discordgo.ErrCodeUnknownChannel), discordgo.ErrCodeUnknownChannel) {
		t.Fatalf("expected unknown channel")
	}
	if isUnknown(restError(http.StatusForbidden, discordgo.ErrCodeMissingAccess), discordgo.ErrCodeUnknownChannel) {
		t.Fatalf("missing access is not unknown")
	}
	if isUnknown(errors.New("timeout"), discordgo.ErrCodeUnknownChannel) {
		t.Fatalf("plain errors are not unknown")
	}
}
