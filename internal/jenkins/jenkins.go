// Package jenkins builds and triggers downstream test-job invocations over
// the Jenkins remote access API.
package jenkins

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/openjdk-ci/releasewatch/internal/release"
)

// Sentinel errors for job invocation.
var (
	ErrEmptyBaseURL     = errors.New("jenkins base URL cannot be empty")
	ErrEmptyCredentials = errors.New("jenkins username and token cannot be empty")
	ErrUnresolvedJDKURL = errors.New("context has no resolved JDK URL")
)

// Standard parameter names understood by the downstream test pipelines.
const (
	ParamJenkinsFile   = "JenkinsFile"
	ParamImpl          = "JDK_IMPL"
	ParamVersion       = "JDK_VERSION"
	ParamBuildList     = "BUILD_LIST"
	ParamTarget        = "TARGET"
	ParamSDKResource   = "SDK_RESOURCE"
	ParamSDKURL        = "CUSTOMIZED_SDK_URL"
	ParamJREURL        = "CUSTOMIZED_JRE_URL"
	ParamSourceURL     = "CUSTOMIZED_SDK_SOURCE_URL"
	implementationTag  = "hotspot"
	sdkResourceMode    = "customized"
	implementationAbbr = "hs"
)

// Suite identifies one downstream test suite by its target and build list.
type Suite struct {
	Target    string
	BuildList string
}

// Suites returns the fixed set of sanity suites dispatched for every
// platform.
func Suites() []Suite {
	return []Suite{
		{Target: "sanity.openjdk", BuildList: "openjdk"},
		{Target: "sanity.system", BuildList: "system"},
	}
}

// Invocation is one downstream job dispatch: a job name plus its parameter
// set. Invocations in a batch are independent of each other.
type Invocation struct {
	JobName    string
	Parameters map[string]string
}

// NewInvocation builds the invocation for one (platform, suite) pair from a
// resolved release context. Contexts without a JDK URL are rejected rather
// than dispatched with empty parameters.
func NewInvocation(version string, suite Suite, ctx *release.Context) (Invocation, error) {
	if !ctx.Resolved() {
		return Invocation{}, fmt.Errorf("%w: %s", ErrUnresolvedJDKURL, ctx.Platform.Classifier())
	}

	jenkinsFile := fmt.Sprintf("openjdk_%s_%s", ctx.Platform.MappedArch, ctx.Platform.OS)

	return Invocation{
		JobName: JobName(version, suite.Target, ctx.Platform.MappedArch, ctx.Platform.OS),
		Parameters: map[string]string{
			ParamJenkinsFile: jenkinsFile,
			ParamImpl:        implementationTag,
			ParamVersion:     version,
			ParamBuildList:   suite.BuildList,
			ParamTarget:      suite.Target,
			ParamSDKResource: sdkResourceMode,
			ParamSDKURL:      ctx.JDKURL,
			ParamJREURL:      ctx.JREURL,
			ParamSourceURL:   ctx.SourceURL,
		},
	}, nil
}

// JobName synthesizes the downstream job name from version, test target,
// mapped architecture and OS.
func JobName(version, target, mappedArch, os string) string {
	return fmt.Sprintf("Test_openjdk%s_%s_%s_%s_%s", version, implementationAbbr, target, mappedArch, os)
}

// DisplayName returns a human-readable description of the invocation, used
// in logs and the poll history.
func (i Invocation) DisplayName() string {
	target := i.Parameters[ParamTarget]
	suite := strings.TrimPrefix(target, "sanity.")
	title := cases.Title(language.English)
	return fmt.Sprintf("%s Sanity (JDK %s, %s %s)",
		title.String(suite),
		i.Parameters[ParamVersion],
		i.Parameters[ParamJenkinsFile],
		i.Parameters[ParamImpl])
}

// Trigger submits job invocations to a Jenkins instance through the
// buildWithParameters endpoint.
type Trigger struct {
	baseURL    string
	username   string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewTrigger creates a Trigger authenticated with a Jenkins API token.
func NewTrigger(baseURL, username, token string, timeout time.Duration, logger *slog.Logger) (*Trigger, error) {
	if baseURL == "" {
		return nil, ErrEmptyBaseURL
	}
	if username == "" || token == "" {
		return nil, ErrEmptyCredentials
	}

	return &Trigger{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		token:    token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}, nil
}

// Run submits one invocation and waits for the queue acknowledgement.
// Jenkins answers 201 Created when the build is queued; anything else fails
// the invocation.
func (t *Trigger) Run(ctx context.Context, inv Invocation) error {
	form := url.Values{}
	for key, value := range inv.Parameters {
		form.Set(key, value)
	}

	endpoint := fmt.Sprintf("%s/job/%s/buildWithParameters", t.baseURL, url.PathEscape(inv.JobName))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create trigger request for %s: %w", inv.JobName, err)
	}
	req.SetBasicAuth(t.username, t.token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	t.logger.Info("triggering downstream job",
		"job", inv.JobName,
		"display_name", inv.DisplayName())

	resp, err := t.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to trigger job %s: %w", inv.JobName, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("job %s rejected with status %d: %s", inv.JobName, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	t.logger.Debug("job queued", "job", inv.JobName, "queue_location", resp.Header.Get("Location"))
	return nil
}
