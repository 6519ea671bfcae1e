// ShareSync - Preprint Metadata Synchronization for SHARE
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/sharesync

package config

import (
	"fmt"
	"net/url"
	"strings"
)

// validateSiteURL validates a base URL that is joined with relative paths
// later (SHARE_URL, SHARE_DOMAIN). It must be http(s), carry a host, have no
// query and end with a slash so that joining keeps any path prefix.
func validateSiteURL(rawURL, fieldName string) error {
	parsedURL, err := validateEndpoint(rawURL, fieldName)
	if err != nil {
		return err
	}
	if parsedURL.RawQuery != "" {
		return fmt.Errorf("%s should not contain query parameters, remove: ?%s", fieldName, parsedURL.RawQuery)
	}
	if !strings.HasSuffix(parsedURL.Path, "/") {
		return fmt.Errorf("%s must end with a trailing slash", fieldName)
	}
	return nil
}

// validateEndpointURL validates a full http(s) endpoint; paths are allowed.
func validateEndpointURL(rawURL, fieldName string) error {
	_, err := validateEndpoint(rawURL, fieldName)
	return err
}

func validateEndpoint(rawURL, fieldName string) (*url.URL, error) {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("%s scheme must be http or https, got: %s", fieldName, parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return nil, fmt.Errorf("%s host is required", fieldName)
	}
	return parsedURL, nil
}

// validateNATSURL supports nats://, tls://, ws:// and wss:// schemes.
func validateNATSURL(rawURL string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("failed to parse URL: %w", err)
	}
	validSchemes := map[string]bool{"nats": true, "tls": true, "ws": true, "wss": true}
	if !validSchemes[parsedURL.Scheme] {
		return fmt.Errorf("scheme must be nats, tls, ws, or wss, got: %s", parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("host is required (e.g., localhost:4222)")
	}
	return nil
}
