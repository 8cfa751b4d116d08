// Copyright 2025 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package awscore

import (
	"github.com/juju/testing"
	jc "github.com/juju/testing/checkers"
	gc "gopkg.in/check.v1"
)

type endpointSuite struct {
	testing.IsolationSuite
}

var _ = gc.Suite(&endpointSuite{})

func (s *endpointSuite) TestRegionalForm(c *gc.C) {
	u, err := ResolveEndpoint("ec2", "eu-west-1", "")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(u.String(), gc.Equals, "https://ec2.eu-west-1.amazonaws.com")
}

func (s *endpointSuite) TestOverride(c *gc.C) {
	u, err := ResolveEndpoint("ec2", "eu-west-1", "http://localhost:4566")
	c.Assert(err, jc.ErrorIsNil)
	c.Check(u.Host, gc.Equals, "localhost:4566")
	c.Check(u.Scheme, gc.Equals, "http")
}

func (s *endpointSuite) TestMissingScheme(c *gc.C) {
	_, err := ResolveEndpoint("ec2", "eu-west-1", "localhost:4566")
	c.Assert(err, jc.ErrorIs, ErrMalformedEndpoint)
}

func (s *endpointSuite) TestMissingHost(c *gc.C) {
	_, err := ResolveEndpoint("ec2", "eu-west-1", "https://")
	c.Assert(err, jc.ErrorIs, ErrMalformedEndpoint)
}
