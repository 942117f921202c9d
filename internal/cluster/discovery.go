package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// MinRemoteReindexVersion is the first release with reindex-from-remote.
const MinRemoteReindexVersion = "5.0"

// RootInfo holds the parsed response of GET /.
type RootInfo struct {
	Name        string `json:"name"`
	ClusterName string `json:"cluster_name"`
	Version     struct {
		Number       string `json:"number"`
		Distribution string `json:"distribution"` // "opensearch" on OpenSearch
	} `json:"version"`
}

// ParseRootInfo extracts the cluster name and version from a GET / body.
func ParseRootInfo(body []byte) (*RootInfo, error) {
	var info RootInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("parsing root response: %w", err)
	}
	if info.Version.Number == "" {
		return nil, fmt.Errorf("root response missing version.number")
	}
	return &info, nil
}

// Info calls GET / and parses the version. If HTTP succeeds but the body
// can't be parsed, an empty RootInfo is returned (reachable, version unknown).
func (c *Client) Info(ctx context.Context) (*RootInfo, error) {
	body, err := c.Get(ctx, "/", nil)
	if err != nil {
		return nil, err
	}
	info, err := ParseRootInfo(body)
	if err != nil {
		return &RootInfo{}, nil
	}
	return info, nil
}

// CompareVersions performs a simple semver comparison.
// Returns -1 if a < b, 0 if a == b, 1 if a > b.
// Handles partial versions (e.g. "7.17" vs "7.17.9") and suffixes like
// "8.0.0-SNAPSHOT".
func CompareVersions(a, b string) int {
	aParts := parseVersionParts(a)
	bParts := parseVersionParts(b)

	maxLen := len(aParts)
	if len(bParts) > maxLen {
		maxLen = len(bParts)
	}

	for i := 0; i < maxLen; i++ {
		var av, bv int
		if i < len(aParts) {
			av = aParts[i]
		}
		if i < len(bParts) {
			bv = bParts[i]
		}
		if av < bv {
			return -1
		}
		if av > bv {
			return 1
		}
	}
	return 0
}

// VersionAtLeast returns true if version >= min.
func VersionAtLeast(version, min string) bool {
	if version == "" || min == "" {
		return true
	}
	return CompareVersions(version, min) >= 0
}

func parseVersionParts(v string) []int {
	if i := strings.IndexByte(v, '-'); i >= 0 {
		v = v[:i]
	}
	parts := strings.Split(v, ".")
	result := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			break
		}
		result = append(result, n)
	}
	return result
}
