// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

// Package credentials holds the credential used to sign requests and
// the providers that acquire it. Resolution order across providers
// (explicit, environment, shared file, instance metadata) is the
// caller's policy; this package supplies the pieces and a chain to
// compose them.
package credentials

import (
	"context"
	"os"
	"time"

	"github.com/juju/errors"
	"gopkg.in/ini.v1"
)

// Credential is the signing material for one principal. A zero
// credential is anonymous: signing is skipped entirely, used for
// public unauthenticated endpoints.
type Credential struct {
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	Expiry          *time.Time
}

// IsAnonymous reports whether the credential carries no signing
// material.
func (c Credential) IsAnonymous() bool {
	return c.AccessKeyID == "" && c.SecretAccessKey == ""
}

// IsExpired reports whether the credential has passed its expiry,
// less the supplied refresh window.
func (c Credential) IsExpired(now time.Time, window time.Duration) bool {
	if c.Expiry == nil {
		return false
	}
	return !now.Before(c.Expiry.Add(-window))
}

// Provider acquires a credential. Acquisition may block (metadata
// service, file IO) and may fail with an availability error.
type Provider interface {
	Credential(ctx context.Context) (Credential, error)
}

// ProviderFunc adapts a function to the Provider interface.
type ProviderFunc func(ctx context.Context) (Credential, error)

// Credential is part of the Provider interface.
func (f ProviderFunc) Credential(ctx context.Context) (Credential, error) {
	return f(ctx)
}

// Static returns a provider that always yields cred.
func Static(cred Credential) Provider {
	return ProviderFunc(func(context.Context) (Credential, error) {
		return cred, nil
	})
}

// Anonymous returns a provider for public endpoints; requests built
// with it are never signed.
func Anonymous() Provider {
	return Static(Credential{})
}

// Environment reads the conventional environment variables.
func Environment() Provider {
	return ProviderFunc(func(context.Context) (Credential, error) {
		access := os.Getenv("AWS_ACCESS_KEY_ID")
		secret := os.Getenv("AWS_SECRET_ACCESS_KEY")
		if access == "" || secret == "" {
			return Credential{}, errors.NotFoundf("credentials in environment")
		}
		return Credential{
			AccessKeyID:     access,
			SecretAccessKey: secret,
			SessionToken:    os.Getenv("AWS_SESSION_TOKEN"),
		}, nil
	})
}

// SharedFile reads a profile from an ini-format shared credentials
// file. An empty profile selects "default".
func SharedFile(path, profile string) Provider {
	if profile == "" {
		profile = "default"
	}
	return ProviderFunc(func(context.Context) (Credential, error) {
		cfg, err := ini.Load(path)
		if err != nil {
			return Credential{}, errors.NotFoundf("shared credentials file %q", path)
		}
		section, err := cfg.GetSection(profile)
		if err != nil {
			return Credential{}, errors.NotFoundf("profile %q in %q", profile, path)
		}
		access := section.Key("aws_access_key_id").String()
		secret := section.Key("aws_secret_access_key").String()
		if access == "" || secret == "" {
			return Credential{}, errors.NotFoundf("credentials for profile %q in %q", profile, path)
		}
		return Credential{
			AccessKeyID:     access,
			SecretAccessKey: secret,
			SessionToken:    section.Key("aws_session_token").String(),
		}, nil
	})
}

// Chain tries each provider in order, returning the first credential
// found. Providers reporting not-found are skipped; any other error
// stops the chain.
func Chain(providers ...Provider) Provider {
	return ProviderFunc(func(ctx context.Context) (Credential, error) {
		for _, p := range providers {
			cred, err := p.Credential(ctx)
			if errors.Is(err, errors.NotFound) {
				continue
			}
			if err != nil {
				return Credential{}, errors.Trace(err)
			}
			return cred, nil
		}
		return Credential{}, errors.NotFoundf("credentials from any provider")
	})
}
