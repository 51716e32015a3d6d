package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// HTTPCrawler — обходчик сайта поверх net/http.
//
// Обходит корневую страницу и внутренние ссылки того же хоста,
// до maxPages страниц. Текст извлекается грубой очисткой HTML:
// для базы знаний этого достаточно, тонкий парсинг — забота
// извлечения контента.
type HTTPCrawler struct {
	client    *http.Client
	userAgent string
	logger    *slog.Logger
}

// NewHTTPCrawler создаёт обходчик.
func NewHTTPCrawler(logger *slog.Logger) *HTTPCrawler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPCrawler{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		userAgent: "voxline-crawler/1.0",
		logger:    logger,
	}
}

var (
	linkRe   = regexp.MustCompile(`(?i)href\s*=\s*["']([^"'#]+)["']`)
	titleRe  = regexp.MustCompile(`(?is)<title[^>]*>(.*?)</title>`)
	tagRe    = regexp.MustCompile(`(?s)<[^>]*>`)
	scriptRe = regexp.MustCompile(`(?is)<(script|style|noscript)[^>]*>.*?</(script|style|noscript)>`)
	spaceRe  = regexp.MustCompile(`\s+`)
)

// Crawl обходит сайт и возвращает собранные страницы.
func (c *HTTPCrawler) Crawl(ctx context.Context, rawURL string, maxPages int) (*CrawlResult, error) {
	root, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if maxPages <= 0 {
		maxPages = 5
	}

	result := &CrawlResult{
		URL:       rawURL,
		CrawledAt: time.Now(),
	}

	visited := map[string]bool{}
	queue := []string{rawURL}

	for len(queue) > 0 && len(result.Pages) < maxPages {
		if err := ctx.Err(); err != nil {
			// Возвращаем собранное: частичный обход лучше пустого
			if len(result.Pages) > 0 {
				return result, nil
			}
			return nil, err
		}

		pageURL := queue[0]
		queue = queue[1:]
		if visited[pageURL] {
			continue
		}
		visited[pageURL] = true

		page, links, err := c.fetchPage(ctx, pageURL)
		if err != nil {
			c.logger.Warn("page fetch failed", "url", pageURL, "error", err)
			if len(result.Pages) == 0 && len(queue) == 0 {
				return nil, fmt.Errorf("crawl %s: %w", rawURL, err)
			}
			continue
		}
		result.Pages = append(result.Pages, *page)

		for _, link := range links {
			resolved := resolveLink(root, link)
			if resolved != "" && !visited[resolved] {
				queue = append(queue, resolved)
			}
		}
	}

	if len(result.Pages) == 0 {
		return nil, fmt.Errorf("crawl %s: no pages collected", rawURL)
	}
	return result, nil
}

// fetchPage скачивает страницу, возвращает её текст и ссылки.
func (c *HTTPCrawler) fetchPage(ctx context.Context, pageURL string) (*Page, []string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, nil, err
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	// Страницы больше 1MB обрезаются
	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, nil, err
	}
	html := string(body)

	page := &Page{
		URL:   pageURL,
		Title: extractTitle(html),
		Text:  extractText(html),
	}

	var links []string
	for _, m := range linkRe.FindAllStringSubmatch(html, -1) {
		links = append(links, m[1])
	}
	return page, links, nil
}

// extractTitle возвращает содержимое <title>.
func extractTitle(html string) string {
	if m := titleRe.FindStringSubmatch(html); m != nil {
		return strings.TrimSpace(spaceRe.ReplaceAllString(m[1], " "))
	}
	return ""
}

// extractText убирает скрипты, стили и теги, схлопывает пробелы.
func extractText(html string) string {
	text := scriptRe.ReplaceAllString(html, " ")
	text = tagRe.ReplaceAllString(text, " ")
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&amp;", "&")
	return strings.TrimSpace(spaceRe.ReplaceAllString(text, " "))
}

// resolveLink приводит ссылку к абсолютной и отбрасывает внешние хосты.
func resolveLink(root *url.URL, link string) string {
	u, err := url.Parse(strings.TrimSpace(link))
	if err != nil {
		return ""
	}
	resolved := root.ResolveReference(u)
	if resolved.Host != root.Host {
		return ""
	}
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""
	return resolved.String()
}
