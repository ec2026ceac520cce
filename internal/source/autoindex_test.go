package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/wraxau/AC-laba3/internal/infra/httpx"
)

const indexHTML = `<!DOCTYPE html>
<html><head><title>Index of /images</title></head><body>
<h1>Index of /images</h1><hr><pre>
<a href="?C=N;O=D">Name</a>
<a href="../">../</a>
<a href="a.jpg">a.jpg</a>
<a href="b%20c.png">b c.png</a>
<a href="sub/">sub/</a>
<a href="note.txt">note.txt</a>
<a href="a.jpg">a.jpg</a>
<a href="https://elsewhere.test/x.png">x.png</a>
</pre><hr></body></html>`

func TestIndex_Entries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/images/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(indexHTML))
	}))
	defer srv.Close()

	c, err := httpx.NewClient("")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	got, err := Index{URL: srv.URL + "/images/", Client: c}.Entries(context.Background())
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	// 排序后：a.jpg、b c.png、note.txt、sub；导航/站外/重复链接被过滤。
	if len(got) != 4 {
		t.Fatalf("期望 4 个条目，实际 %d：%+v", len(got), got)
	}
	if got[0].Name != "a.jpg" || got[0].Ext != ".jpg" || !got[0].Regular {
		t.Fatalf("a.jpg 不符合预期：%+v", got[0])
	}
	if got[0].Locator != srv.URL+"/images/a.jpg" {
		t.Fatalf("locator 应为绝对 URL：%q", got[0].Locator)
	}
	if got[1].Name != "b c.png" {
		t.Fatalf("URL 转义的文件名应被还原：%+v", got[1])
	}
	if got[3].Name != "sub" || got[3].Regular {
		t.Fatalf("子目录应为非常规条目：%+v", got[3])
	}
}

func TestIndex_Entries_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer srv.Close()

	c, err := httpx.NewClient("")
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	_, err = Index{URL: srv.URL + "/gone/", Client: c}.Entries(context.Background())
	if !httpx.IsStatus(err, http.StatusNotFound) {
		t.Fatalf("期望 404 StatusError，实际 %v", err)
	}
}
