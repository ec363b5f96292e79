package main

import (
	"context"
	"errors"
	"net"

	"plantkeeper/internal/api"
)

func formatCLIError(err error) []string {
	if err == nil {
		return nil
	}

	lines := []string{err.Error()}

	var apiErr *api.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Code {
		case "not_found":
			lines = append(lines, "hint: run `plantkeeper list` to see existing plant ids.")
		case "resource_exhausted":
			lines = append(lines, "hint: retry shortly; the server limits concurrent image uploads.")
		}
		if apiErr.Rejected() {
			lines = append(lines, "hint: upload a JPEG, PNG or GIF image whose extension matches its content.")
		}
		if !apiErr.FromServer() {
			lines = append(lines, "hint: verify PLANTKEEPER_API_URL points to a plantkeeper server.")
		}
		if apiErr.Status >= 500 {
			lines = append(lines, "hint: server returned an internal error; check server logs for details.")
		}
		return uniqueLines(lines)
	}

	if errors.Is(err, context.DeadlineExceeded) {
		lines = append(lines, "hint: request timed out; check server health or increase PLANTKEEPER_HTTP_TIMEOUT.")
		return uniqueLines(lines)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		lines = append(lines,
			"hint: ensure a plantkeeper server is running at PLANTKEEPER_API_URL.",
			"hint: start local server manually with: plantkeeper srv",
			"hint: you can increase PLANTKEEPER_HTTP_TIMEOUT for slower environments.",
		)
		return uniqueLines(lines)
	}

	return uniqueLines(lines)
}

func uniqueLines(lines []string) []string {
	seen := make(map[string]struct{}, len(lines))
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line == "" {
			continue
		}
		if _, ok := seen[line]; ok {
			continue
		}
		seen[line] = struct{}{}
		out = append(out, line)
	}
	return out
}
