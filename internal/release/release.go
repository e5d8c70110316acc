// Package release holds the release metadata model and the asset-to-platform
// URL resolution used to parameterize downstream test jobs.
package release

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/go-github/v57/github"

	"github.com/openjdk-ci/releasewatch/internal/platform"
)

// Sentinel errors for release metadata construction.
var (
	ErrNoPublishedReleases = errors.New("no published releases found")
	ErrNilRelease          = errors.New("release cannot be nil")
)

// Context carries the artifact URLs resolved for one OS/architecture pair.
// It is populated once while scanning a release's asset list and read-only
// afterward.
type Context struct {
	Platform  platform.Platform
	JDKURL    string
	JREURL    string
	SourceURL string
}

// Resolved reports whether the context carries everything a downstream job
// requires. The JRE and source URLs are optional.
func (c *Context) Resolved() bool {
	return c.JDKURL != ""
}

// Metadata holds the newest publish timestamp seen for a version and the
// release records keyed by their publish timestamp. GA mode yields a single
// entry; EA-inclusive mode yields one per published release.
type Metadata struct {
	Newest   time.Time
	Releases map[time.Time]*github.RepositoryRelease
}

// NewMetadata builds Metadata from a list of release records. Records without
// a publish timestamp (unpublished or in-progress releases) are dropped.
// When two releases share an identical timestamp, the one with the higher
// tag wins (see CompareTags).
func NewMetadata(releases []*github.RepositoryRelease) (*Metadata, error) {
	m := &Metadata{
		Releases: make(map[time.Time]*github.RepositoryRelease),
	}

	for _, rel := range releases {
		if rel == nil || rel.PublishedAt == nil {
			continue
		}
		published := rel.PublishedAt.Time

		if existing, ok := m.Releases[published]; ok {
			if CompareTags(rel.GetTagName(), existing.GetTagName()) <= 0 {
				continue
			}
		}
		m.Releases[published] = rel

		if published.After(m.Newest) {
			m.Newest = published
		}
	}

	if len(m.Releases) == 0 {
		return nil, ErrNoPublishedReleases
	}

	return m, nil
}

// NewestRelease returns the release record published at the newest timestamp.
func (m *Metadata) NewestRelease() *github.RepositoryRelease {
	return m.Releases[m.Newest]
}

// Contexts resolves the artifact URLs of the newest release against the
// platform combinations tested for the given version. Contexts whose JDK URL
// never resolves are still returned; callers decide how to treat them.
func (m *Metadata) Contexts(version string) ([]*Context, error) {
	newest := m.NewestRelease()
	if newest == nil {
		return nil, ErrNilRelease
	}

	contexts := make([]*Context, 0, 3)
	for _, p := range platform.ForVersion(version) {
		contexts = append(contexts, &Context{Platform: p})
	}

	ResolveAssets(contexts, newest.Assets)
	return contexts, nil
}

// signatureSuffixes marks detached signature files published next to the
// binaries; they are never test targets.
var signatureSuffixes = []string{".sign", ".sig"}

func isSignature(name string) bool {
	for _, suffix := range signatureSuffixes {
		if strings.HasSuffix(name, suffix) {
			return true
		}
	}
	return false
}

// ResolveAssets scans a release's asset list and fills in the artifact URLs
// of each context. Matching is by substring: an asset belongs to a context
// when its filename contains both the OS name and the raw architecture name.
// Source archives apply to every context. Later assets overwrite earlier
// matches, so the API's asset order is significant.
func ResolveAssets(contexts []*Context, assets []*github.ReleaseAsset) {
	for _, asset := range assets {
		name := asset.GetName()
		url := asset.GetBrowserDownloadURL()
		if name == "" || isSignature(name) || strings.Contains(name, "debuginfo") {
			continue
		}

		if strings.Contains(name, "-sources_") {
			for _, ctx := range contexts {
				ctx.SourceURL = url
			}
			continue
		}

		for _, ctx := range contexts {
			if !strings.Contains(name, ctx.Platform.OS) || !strings.Contains(name, ctx.Platform.Arch) {
				continue
			}
			switch {
			case strings.Contains(name, "-jdk"):
				ctx.JDKURL = url
			case strings.Contains(name, "-jre"):
				ctx.JREURL = url
			case strings.Contains(name, "-testimage"):
				// Test material, not a runnable image.
			default:
				// Pre-split packaging: a single archive with no image marker
				// is the JDK.
				ctx.JDKURL = url
			}
		}
	}
}

// CompareTags orders two release tags. Tags that parse as semantic versions
// (after trimming the common "jdk-" and "v" prefixes) are compared as such;
// semver ties and unparseable tags fall back to lexicographic order, so the
// ordering is total. Returns -1, 0 or 1.
func CompareTags(a, b string) int {
	va, errA := semver.NewVersion(trimTag(a))
	vb, errB := semver.NewVersion(trimTag(b))
	if errA == nil && errB == nil {
		// Build metadata ("+9") does not take part in semver precedence, so
		// equal-precedence tags still need the lexicographic fallback.
		if c := va.Compare(vb); c != 0 {
			return c
		}
	}
	return strings.Compare(a, b)
}

func trimTag(tag string) string {
	tag = strings.TrimPrefix(tag, "jdk-")
	tag = strings.TrimPrefix(tag, "jdk")
	tag = strings.TrimPrefix(tag, "v")
	return tag
}

// String returns a short description of the metadata for logging.
func (m *Metadata) String() string {
	return fmt.Sprintf("%d release(s), newest published %s", len(m.Releases), m.Newest.Format(time.RFC3339))
}
