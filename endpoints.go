// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package awscore

import (
	"fmt"
	"net/url"

	"github.com/juju/errors"
)

// ResolveEndpoint returns the base URL requests are dispatched to.
// An empty override yields the conventional regional form
// https://<service>.<region>.amazonaws.com; a non-empty override is
// used verbatim and must carry both a scheme and a host.
func ResolveEndpoint(service, region, override string) (*url.URL, error) {
	if override == "" {
		return &url.URL{
			Scheme: "https",
			Host:   fmt.Sprintf("%s.%s.amazonaws.com", service, region),
		}, nil
	}
	u, err := url.Parse(override)
	if err != nil {
		return nil, errors.WithType(errors.Annotatef(err, "parsing endpoint %q", override), ErrMalformedEndpoint)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.WithType(
			errors.Errorf("endpoint %q needs a scheme and a host", override), ErrMalformedEndpoint)
	}
	return u, nil
}
