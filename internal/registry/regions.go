// Copyright (c) 2026 Keymaster Team
// Regvault - device registry backup and restore
// This source code is licensed under the MIT license found in the LICENSE file.

package registry

import (
	"sort"
	"strings"
)

// DefaultRegions are the AWS region identifiers that may appear in exported
// ARNs and policy documents.
var DefaultRegions = []string{
	"af-south-1",
	"ap-east-1",
	"ap-northeast-1",
	"ap-northeast-2",
	"ap-northeast-3",
	"ap-south-1",
	"ap-south-2",
	"ap-southeast-1",
	"ap-southeast-2",
	"ap-southeast-3",
	"ap-southeast-4",
	"ap-southeast-5",
	"ap-southeast-7",
	"ca-central-1",
	"ca-west-1",
	"cn-north-1",
	"cn-northwest-1",
	"eu-central-1",
	"eu-central-2",
	"eu-north-1",
	"eu-south-1",
	"eu-south-2",
	"eu-west-1",
	"eu-west-2",
	"eu-west-3",
	"il-central-1",
	"me-central-1",
	"me-south-1",
	"mx-central-1",
	"sa-east-1",
	"us-east-1",
	"us-east-2",
	"us-gov-east-1",
	"us-gov-west-1",
	"us-west-1",
	"us-west-2",
}

// RegionRewriter replaces any known region identifier in a string with the
// target region. Exported ARNs and policy documents embed the export-time
// region and are not portable without it.
type RegionRewriter struct {
	target   string
	replacer *strings.Replacer
}

// NewRegionRewriter builds a rewriter towards target. An empty known list
// uses DefaultRegions.
func NewRegionRewriter(target string, known []string) *RegionRewriter {
	if len(known) == 0 {
		known = DefaultRegions
	}
	regions := append([]string(nil), known...)
	// Longest first so the replacer never matches a shorter name inside a longer one.
	sort.SliceStable(regions, func(i, j int) bool { return len(regions[i]) > len(regions[j]) })

	pairs := make([]string, 0, 2*len(regions))
	for _, r := range regions {
		if r == "" || r == target {
			continue
		}
		pairs = append(pairs, r, target)
	}
	return &RegionRewriter{target: target, replacer: strings.NewReplacer(pairs...)}
}

// Target is the region strings are rewritten to.
func (r *RegionRewriter) Target() string {
	if r == nil {
		return ""
	}
	return r.target
}

// Rewrite returns s with every known region replaced by the target region.
func (r *RegionRewriter) Rewrite(s string) string {
	if r == nil {
		return s
	}
	return r.replacer.Replace(s)
}
