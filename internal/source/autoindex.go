package source

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"path"
	"sort"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wraxau/AC-laba3/internal/infra/httpx"
)

// Index 枚举一个 HTTP 目录索引页（nginx/Apache autoindex 风格）：
// 抓取 HTML，提取文件链接，把解析出的绝对 URL 作为 locator。
type Index struct {
	URL    string
	Client *http.Client
}

// Entries 抓取索引页并解析出文件条目。
//
// 过滤规则：
// - 跳过父目录/排序参数等导航链接（"../"、以 '?'/'#' 开头）
// - 以 '/' 结尾的链接视为子目录（Regular=false），与本地目录枚举保持一致
// - 跳转到其它 host 的链接直接忽略（索引页偶尔混入站外链接）
func (x Index) Entries(ctx context.Context) ([]Entry, error) {
	if x.Client == nil {
		return nil, errors.New("http client 为空")
	}
	base, err := url.Parse(strings.TrimSpace(x.URL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, errors.New("autoindex URL 无效")
	}

	html, err := httpx.Get(ctx, x.Client, base.String())
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, 64)
	entries := make([]Entry, 0, 64)
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		href = strings.TrimSpace(href)
		if href == "" || strings.HasPrefix(href, "?") || strings.HasPrefix(href, "#") {
			return
		}
		if href == "../" || href == ".." {
			return
		}

		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := base.ResolveReference(ref)
		if abs.Host != base.Host {
			return
		}

		isDir := strings.HasSuffix(abs.Path, "/")
		name, err := url.PathUnescape(path.Base(strings.TrimSuffix(abs.Path, "/")))
		if err != nil || name == "" || name == "/" || name == "." {
			return
		}

		// 去重：同一文件常出现两个链接（文件名列 + 图标列）。
		if _, ok := seen[abs.String()]; ok {
			return
		}
		seen[abs.String()] = struct{}{}

		entries = append(entries, Entry{
			Name:    name,
			Ext:     strings.ToLower(path.Ext(name)),
			Locator: abs.String(),
			Regular: !isDir,
		})
	})

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
