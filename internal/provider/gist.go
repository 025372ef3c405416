package provider

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/go-github/v59/github"
	"golang.org/x/oauth2"

	"github.com/termhub/connvault/models"
)

// gistVaultFile is the name of the vault document inside the gist.
const gistVaultFile = "connvault.vault"

// gistAdapter keeps the encrypted vault document in a single secret gist.
// The gist commit count serves as the monotonic document version: every
// edit appends exactly one commit, so the count only moves forward.
// Compare-and-swap is emulated by re-reading the head revision right before
// the edit; the remaining race window is accepted and caught by the next
// sync's conflict detection.
type gistAdapter struct {
	mu     sync.Mutex
	client *github.Client
	gistID string
}

// NewGistAdapter builds the git-hosted document store adapter. The client is
// created on Connect, once the OAuth token is known.
func NewGistAdapter() Adapter {
	return &gistAdapter{}
}

func (g *gistAdapter) ID() models.ProviderID { return models.ProviderGist }

func (g *gistAdapter) Connect(ctx context.Context, creds models.ProviderCredentials) (models.AccountInfo, error) {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: creds.Token})
	client := github.NewClient(oauth2.NewClient(ctx, ts))

	user, resp, err := client.Users.Get(ctx, "")
	if err != nil {
		if resp != nil && (resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden) {
			return models.AccountInfo{}, ErrAuth
		}
		return models.AccountInfo{}, fmt.Errorf("%w: github user lookup: %v", ErrNetwork, err)
	}

	g.mu.Lock()
	g.client = client
	g.gistID = creds.GistID
	g.mu.Unlock()

	return models.AccountInfo{
		ProviderID: models.ProviderGist,
		AccountID:  user.GetLogin(),
		Email:      user.GetEmail(),
		Label:      user.GetName(),
	}, nil
}

func (g *gistAdapter) Fetch(ctx context.Context) (*models.RemoteSnapshot, error) {
	client, gistID, err := g.session()
	if err != nil {
		return nil, err
	}
	if gistID == "" {
		// Nothing has ever been pushed and no existing gist was configured.
		return nil, nil
	}

	gist, resp, err := client.Gists.Get(ctx, gistID)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return nil, fmt.Errorf("%w: gist %s", ErrNotFound, gistID)
		}
		return nil, fmt.Errorf("%w: gist fetch: %v", ErrNetwork, err)
	}

	file, ok := gist.Files[gistVaultFile]
	if !ok {
		return nil, nil
	}

	return &models.RemoteSnapshot{
		Blob:      file.GetContent(),
		Version:   int64(len(gist.History)),
		UpdatedAt: gist.GetUpdatedAt().UnixMilli(),
	}, nil
}

func (g *gistAdapter) Push(ctx context.Context, blob string, expectedVersion int64) (int64, error) {
	client, gistID, err := g.session()
	if err != nil {
		return 0, err
	}

	content := blob
	payload := &github.Gist{
		Description: github.String("connvault encrypted vault"),
		Public:      github.Bool(false),
		Files: map[github.GistFilename]github.GistFile{
			gistVaultFile: {Content: &content},
		},
	}

	if gistID == "" {
		if expectedVersion > 0 {
			return 0, fmt.Errorf("%w: expected version %d but no gist exists", ErrVersionConflict, expectedVersion)
		}
		created, _, err := client.Gists.Create(ctx, payload)
		if err != nil {
			return 0, fmt.Errorf("%w: gist create: %v", ErrNetwork, err)
		}

		g.mu.Lock()
		g.gistID = created.GetID()
		g.mu.Unlock()

		return 1, nil
	}

	// Re-read the head revision immediately before editing. This narrows,
	// but cannot fully close, the CAS race window; a lost race surfaces as
	// a conflict on the next sync.
	current, resp, err := client.Gists.Get(ctx, gistID)
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return 0, fmt.Errorf("%w: gist %s", ErrNotFound, gistID)
		}
		return 0, fmt.Errorf("%w: gist head read: %v", ErrNetwork, err)
	}
	if headVersion := int64(len(current.History)); headVersion != expectedVersion {
		return 0, fmt.Errorf("%w: expected %d, remote at %d", ErrVersionConflict, expectedVersion, headVersion)
	}

	if _, _, err = client.Gists.Edit(ctx, gistID, payload); err != nil {
		return 0, fmt.Errorf("%w: gist edit: %v", ErrNetwork, err)
	}

	return expectedVersion + 1, nil
}

func (g *gistAdapter) Disconnect(_ context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.client = nil
	g.gistID = ""
	return nil
}

func (g *gistAdapter) session() (*github.Client, string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client == nil {
		return nil, "", ErrNotConnected
	}
	return g.client, g.gistID, nil
}
