package hosts

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

var (
	starsRe = regexp.MustCompile(`(?i)([\d][\d,.]*k?)\s+stars?\b`)
	forksRe = regexp.MustCompile(`(?i)([\d][\d,.]*k?)\s+forks?\b`)
)

// GitHubHandler rewrites github.com links to raw content URLs so the
// fetcher gets file bodies instead of the web UI, and mines repository
// metadata out of rendered pages.
type GitHubHandler struct {
	prober Prober
	logger *slog.Logger
}

var _ Handler = (*GitHubHandler)(nil)

// NewGitHubHandler creates a GitHubHandler using the given prober for
// README existence checks.
func NewGitHubHandler(prober Prober) *GitHubHandler {
	return &GitHubHandler{
		prober: prober,
		logger: slog.Default().With("component", "hosts", "handler", "github"),
	}
}

func (h *GitHubHandler) Domains() []string {
	return []string{"github.com", "raw.githubusercontent.com"}
}

// RewriteLink maps GitHub web UI URLs to raw content:
//
//	/owner/repo/blob/ref/path  ->  raw file at that path
//	/owner/repo/tree/ref/dir   ->  the directory's README.md, if one exists
//	/owner/repo                ->  the repository README.md, if one exists
func (h *GitHubHandler) RewriteLink(ctx context.Context, link string) string {
	u, err := url.Parse(link)
	if err != nil || !strings.EqualFold(u.Hostname(), "github.com") {
		return link
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return link
	}
	owner, repo := parts[0], parts[1]

	switch {
	case len(parts) >= 5 && parts[2] == "blob":
		ref := parts[3]
		path := strings.Join(parts[4:], "/")
		return rawGitHubURL(owner, repo, ref, path)

	case len(parts) >= 4 && parts[2] == "tree":
		ref := parts[3]
		dir := strings.Join(parts[4:], "/")
		candidate := rawGitHubURL(owner, repo, ref, joinPath(dir, "README.md"))
		if h.prober != nil && h.prober.Exists(ctx, candidate) {
			return candidate
		}
		h.logger.Debug("no README at tree path, keeping original link", "link", link)
		return link

	case len(parts) == 2:
		candidate := rawGitHubURL(owner, repo, "HEAD", "README.md")
		if h.prober != nil && h.prober.Exists(ctx, candidate) {
			return candidate
		}
		return link
	}

	return link
}

// ExtractMetadata records owner/repo plus star and fork counts when the
// rendered page mentions them.
func (h *GitHubHandler) ExtractMetadata(sourceURL, markdown string) map[string]string {
	u, err := url.Parse(sourceURL)
	if err != nil {
		return nil
	}
	host := strings.ToLower(u.Hostname())
	if host != "github.com" && host != "raw.githubusercontent.com" {
		return nil
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 {
		return nil
	}

	metadata := map[string]string{
		"ghOwner": parts[0],
		"ghRepo":  parts[1],
	}
	if m := starsRe.FindStringSubmatch(markdown); m != nil {
		metadata["ghStars"] = m[1]
	}
	if m := forksRe.FindStringSubmatch(markdown); m != nil {
		metadata["ghForks"] = m[1]
	}
	return metadata
}

func rawGitHubURL(owner, repo, ref, path string) string {
	return fmt.Sprintf("https://raw.githubusercontent.com/%s/%s/%s/%s", owner, repo, ref, path)
}

func joinPath(dir, file string) string {
	if dir == "" {
		return file
	}
	return dir + "/" + file
}
