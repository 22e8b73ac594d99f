package tosdr

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"toslinks/lib/telemetry"

	"github.com/stretchr/testify/require"
)

const loginPageFixture = `<html><body>
<form action="/users/sign_in" method="post">
  <input type="hidden" name="authenticity_token" value="tok-123" />
  <input type="email" name="user[email]" />
  <input type="password" name="user[password]" />
</form>
</body></html>`

// testSite serves just enough of the edit site to exercise the scraper:
// a sign in form and a paginated services listing.
type testSite struct {
	server       *httptest.Server
	signInBody   string
	signInStatus int
	loginStatus  int
	pages        map[string]string
	pageStatus   map[string]int

	mu        sync.Mutex
	loginForm url.Values
	pageHits  []string
}

func newTestSite(t *testing.T) *testSite {
	site := &testSite{
		signInBody:   loginPageFixture,
		signInStatus: http.StatusOK,
		loginStatus:  http.StatusOK,
		pages:        map[string]string{},
		pageStatus:   map[string]int{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/users/sign_in", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			err := r.ParseForm()
			if err != nil {
				t.Error(err)
			}
			site.mu.Lock()
			site.loginForm = r.PostForm
			site.mu.Unlock()

			if site.loginStatus != http.StatusOK {
				w.WriteHeader(site.loginStatus)
				return
			}
			http.SetCookie(w, &http.Cookie{Name: "_session_id", Value: "authenticated"})
			fmt.Fprint(w, "<html><body>signed in</body></html>")
			return
		}

		if site.signInStatus != http.StatusOK {
			w.WriteHeader(site.signInStatus)
			return
		}
		fmt.Fprint(w, site.signInBody)
	})
	mux.HandleFunc("/services", func(w http.ResponseWriter, r *http.Request) {
		site.mu.Lock()
		site.pageHits = append(site.pageHits, r.URL.RawQuery)
		site.mu.Unlock()

		page := r.URL.Query().Get("page")
		if page == "" {
			page = "1"
		}
		if status, ok := site.pageStatus[page]; ok {
			w.WriteHeader(status)
			return
		}
		fmt.Fprint(w, site.pages[page])
	})

	site.server = httptest.NewServer(mux)
	t.Cleanup(site.server.Close)
	return site
}

func (s *testSite) client(t *testing.T) *Client {
	client, err := NewClient(context.Background(), ClientOptions{BaseUrl: s.server.URL})
	if err != nil {
		t.Fatal(err)
	}
	return client
}

func servicesPageFixture(hrefs ...string) string {
	var rows string
	for i, href := range hrefs {
		rows += fmt.Sprintf(
			`<tr class="toSort"><td>Service %d</td><td class="text-right"><a href="%s">docs</a></td></tr>`,
			i+1, href,
		)
	}
	return fmt.Sprintf(`<html><body><table><tbody>%s</tbody></table></body></html>`, rows)
}

func TestFetchAuthenticityToken(t *testing.T) {
	cleanup := telemetry.SetupForTesting(t, "test:scrapers/tosdr")
	defer cleanup()

	site := newTestSite(t)
	client := site.client(t)

	token, err := client.fetchAuthenticityToken(context.Background())
	require.NoError(t, err)
	require.Equal(t, "tok-123", token)
}

func TestFetchAuthenticityTokenMissing(t *testing.T) {
	site := newTestSite(t)
	site.signInBody = `<html><body><form><input type="email" name="user[email]" /></form></body></html>`
	client := site.client(t)

	_, err := client.fetchAuthenticityToken(context.Background())
	require.ErrorIs(t, err, ErrTokenNotFound)
}

func TestLogin(t *testing.T) {
	site := newTestSite(t)
	client := site.client(t)

	err := client.Login(context.Background(), "editor@example.com", "hunter2")
	require.NoError(t, err)

	require.Equal(t, "editor@example.com", site.loginForm.Get("user[email]"))
	require.Equal(t, "hunter2", site.loginForm.Get("user[password]"))
	require.Equal(t, "tok-123", site.loginForm.Get("authenticity_token"))

	cookies := client.Http.GetClient().Jar.Cookies(client.BaseUrl)
	require.NotEmpty(t, cookies)
	require.Equal(t, "_session_id", cookies[0].Name)
}

func TestLoginRejected(t *testing.T) {
	site := newTestSite(t)
	site.loginStatus = http.StatusUnauthorized
	client := site.client(t)

	err := client.Login(context.Background(), "editor@example.com", "wrong")
	require.ErrorIs(t, err, ErrLoginFailed)
}

func TestLoginSignInPageDown(t *testing.T) {
	site := newTestSite(t)
	site.signInStatus = http.StatusServiceUnavailable
	client := site.client(t)

	err := client.Login(context.Background(), "editor@example.com", "hunter2")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusServiceUnavailable, statusErr.Status)
}

func TestFetchServiceLinks(t *testing.T) {
	site := newTestSite(t)
	// three sortable rows of which only two carry an anchor, plus a
	// non-sortable row that must be ignored entirely
	site.pages["1"] = `<html><body><table><tbody>
<tr class="toSort"><td>Alpha</td><td class="text-right"><a href="/services/1/annotate">docs</a></td></tr>
<tr class="toSort"><td>Beta</td><td class="text-right">pending</td></tr>
<tr class="toSort"><td>Gamma</td><td class="text-right"><a href="/services/3/annotate">docs</a></td></tr>
<tr><td>Footer</td><td class="text-right"><a href="/services/9/annotate">docs</a></td></tr>
</tbody></table></body></html>`
	client := site.client(t)

	links, err := client.FetchServiceLinks(context.Background(), 1)
	require.NoError(t, err)
	require.Equal(t, []string{
		site.server.URL + "/services/1/annotate",
		site.server.URL + "/services/3/annotate",
	}, links)
}

func TestFetchServiceLinksPageParam(t *testing.T) {
	site := newTestSite(t)
	site.pages["1"] = servicesPageFixture("/services/1/annotate")
	site.pages["2"] = servicesPageFixture("/services/2/annotate")
	client := site.client(t)

	ctx := context.Background()
	_, err := client.FetchServiceLinks(ctx, 1)
	require.NoError(t, err)
	_, err = client.FetchServiceLinks(ctx, 2)
	require.NoError(t, err)

	// the first page must hit the listing url unmodified
	require.Equal(t, []string{"", "page=2"}, site.pageHits)
}

func TestFetchServiceLinksEmptyPage(t *testing.T) {
	site := newTestSite(t)
	site.pages["1"] = servicesPageFixture()
	client := site.client(t)

	links, err := client.FetchServiceLinks(context.Background(), 1)
	require.NoError(t, err)
	require.Empty(t, links)
}

func TestFetchServiceLinksBadStatus(t *testing.T) {
	site := newTestSite(t)
	site.pageStatus["2"] = http.StatusInternalServerError
	client := site.client(t)

	_, err := client.FetchServiceLinks(context.Background(), 2)
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	require.Equal(t, http.StatusInternalServerError, statusErr.Status)
}
