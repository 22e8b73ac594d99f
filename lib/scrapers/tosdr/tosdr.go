// Package tosdr scrapes terms-of-service document links out of the
// edit.tosdr.org services listing.
package tosdr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"time"

	"toslinks/lib/htmlutil"
	"toslinks/lib/restyutil"
	"toslinks/lib/telemetry"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/codes"
)

const signInPath = "/users/sign_in"
const servicesPath = "/services"

var ErrTokenNotFound = fmt.Errorf("could not find an authenticity token on the sign in page")
var ErrLoginFailed = fmt.Errorf("Failed to login to your account.")

// StatusError is a non-success HTTP status on a page the scraper needed.
type StatusError struct {
	Url    string
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.Status, e.Url)
}

type Client struct {
	BaseUrl *url.URL
	Http    *resty.Client
}

type ClientOptions struct {
	BaseUrl string
}

// NewClient builds a session client for the edit site. The cookie jar
// holds the authenticated session after Login, so one client must not
// be shared across runs.
func NewClient(ctx context.Context, opts ClientOptions) (*Client, error) {
	baseUrl, err := url.Parse(opts.BaseUrl)
	if err != nil {
		return nil, err
	}

	client := resty.New()
	client.SetBaseURL(opts.BaseUrl)
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	client.SetCookieJar(jar)
	// the edit site sits behind cloudflare
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)

	client.SetHeader("user-agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36")
	client.SetRedirectPolicy(resty.DomainCheckRedirectPolicy(baseUrl.Hostname()))
	client.SetTimeout(time.Second * 30)

	if restyInstrumentOutput != nil {
		restyutil.InstrumentClient(client, tracer, restyInstrumentOutput)
	} else {
		telemetry.InstrumentResty(client, "toslinks.scrapers.tosdr.http")
	}

	c := &Client{
		BaseUrl: baseUrl,
		Http:    client,
	}
	return c, nil
}

func (c *Client) fetchAuthenticityToken(ctx context.Context) (string, error) {
	ctx, span := tracer.Start(ctx, "client:fetchAuthenticityToken")
	defer span.End()

	res, err := c.Http.R().
		SetContext(ctx).
		Get(signInPath)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch sign in page")
		return "", err
	}
	if !res.IsSuccess() {
		err := &StatusError{Url: res.Request.URL, Status: res.StatusCode()}
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse sign in page html")
		return "", err
	}

	token := doc.Find("input[name=authenticity_token]").AttrOr("value", "")
	if token == "" {
		slog.ErrorContext(ctx, "failed to retrieve authenticity token")
		span.SetStatus(codes.Error, ErrTokenNotFound.Error())
		return "", ErrTokenNotFound
	}
	return token, nil
}

// Login authenticates the session by echoing the sign in form's
// authenticity token back with the credentials. A 200 on the POST is
// taken as success without probing authenticated content afterwards,
// the cookie jar carries whatever session the server handed back.
func (c *Client) Login(ctx context.Context, email, password string) error {
	ctx, span := tracer.Start(ctx, "client:Login")
	defer span.End()

	token, err := c.fetchAuthenticityToken(ctx)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch authenticity token")
		return err
	}

	res, err := c.Http.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"user[email]":        email,
			"user[password]":     password,
			"authenticity_token": token,
		}).
		Post(signInPath)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to make login request")
		return err
	}

	if res.StatusCode() != http.StatusOK {
		slog.ErrorContext(ctx, "login failed", "status", res.StatusCode())
		span.SetStatus(codes.Error, ErrLoginFailed.Error())
		return fmt.Errorf("%w (status %d)", ErrLoginFailed, res.StatusCode())
	}
	return nil
}

// FetchServiceLinks scrapes the ToS document links off one page of the
// services listing, in row order. Rows without an anchor in the
// right-aligned cell are skipped.
func (c *Client) FetchServiceLinks(ctx context.Context, page int) ([]string, error) {
	ctx, span := tracer.Start(ctx, "client:FetchServiceLinks")
	defer span.End()

	req := c.Http.R().SetContext(ctx)
	if page > 1 {
		req.SetQueryParam("page", strconv.Itoa(page))
	}
	res, err := req.Get(servicesPath)
	if err != nil {
		span.SetStatus(codes.Error, "failed to fetch services page")
		return nil, err
	}
	if !res.IsSuccess() {
		err := &StatusError{Url: res.Request.URL, Status: res.StatusCode()}
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewBuffer(res.Body()))
	if err != nil {
		span.SetStatus(codes.Error, "failed to parse services page html")
		return nil, err
	}

	links := []string{}
	doc.Find("tr.toSort").Each(func(_ int, row *goquery.Selection) {
		anchors := htmlutil.GetAnchors(ctx, c.BaseUrl, row.Find("td.text-right a").First())
		if len(anchors) == 0 {
			return
		}
		links = append(links, anchors[0].Href)
	})

	slog.DebugContext(ctx, "scraped services page", "page", page, "links", len(links))
	return links, nil
}
