// Package deviantart はDeviantArt Eclipse APIのクライアントを提供する。
// CSRFトークンのブートストラップ、結果リストのページング、
// プロセス全体で共有される最小間隔スロットルを含む。
package deviantart

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/BishopRed90/galleryman/internal/model"
)

const (
	// defaultRoot はDeviantArtのサービスルートURL。
	defaultRoot = "https://www.deviantart.com"
	// daMinorVersion はEclipse APIのバージョンパラメータ。
	daMinorVersion = "20230710"
	// userAgent は全リクエストに付与するUser-Agent。
	userAgent = "Galleryman/1.0"
	// defaultPageLimit は1ページあたりのデフォルト取得件数。
	defaultPageLimit = 24
	// csrfMarker はHTMLページ中のCSRFトークンの開始マーカー。
	csrfMarker = "window.__CSRF_TOKEN__ = '"
)

// warnPrivateDeviations はページ件数の不足時に1回だけ出力する警告。
const warnPrivateDeviations = "Private deviations detected! " +
	"Provide login credentials or session cookies to be able to access them."

// APIMetrics はクライアントが記録するメトリクスのインターフェース。
type APIMetrics interface {
	RecordHTTPStatus(statusCode int)
	RecordAPILatency(duration time.Duration)
}

// PageFunc はページングで列挙された各結果要素に対して呼び出される。
// エラーを返すと列挙を中断し、そのエラーが呼び出し元へ伝播する。
type PageFunc func(raw json.RawMessage) error

// DeviationFunc は列挙された各デビエーションに対して呼び出される。
type DeviationFunc func(dev *model.Deviation) error

// Client はEclipse APIのクライアント。
// 詳細取得エンドポイントはレート制限に敏感なため、
// 全リクエストが共有スロットルを通過する。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	root       string // テスト用にルートURLを差し替え可能
	cookie     string
	throttle   *Throttle
	metrics    APIMetrics

	mu        sync.Mutex
	csrfToken string
}

// NewClient はClientの新しいインスタンスを生成する。
// cookieはセッションCookie（空の場合は匿名アクセス）、
// minIntervalはリクエスト間の最小間隔、mはnil可。
func NewClient(httpClient *http.Client, logger *slog.Logger, cookie string, minInterval time.Duration, m APIMetrics) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		root:       defaultRoot,
		cookie:     cookie,
		throttle:   NewThrottle(minInterval),
		metrics:    m,
	}
}

// SetRoot はサービスのルートURLを差し替える。
// SERVICE_ROOT設定によるミラー・検証環境向け。
func (c *Client) SetRoot(root string) {
	c.root = strings.TrimRight(root, "/")
}

// HasSessionCookie はセッションCookieが設定されているかを返す。
// プレミアムコンテンツの解決可否の判定に使用する。
func (c *Client) HasSessionCookie() bool {
	return c.cookie != ""
}

// FetchPage は指定URLのHTMLページを取得する。
// ジャーナル本文の抽出とCSRFブートストラップに使用する。
func (c *Client) FetchPage(ctx context.Context, rawurl string) (string, error) {
	body, status, err := c.get(ctx, rawurl)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("ページの取得がステータス %d で失敗しました: %s", status, rawurl)
	}
	return string(body), nil
}

// FetchCSRF はサービスルートのHTMLページからCSRFトークンを取り出して保持する。
// トークンは全APIコールのcsrf_tokenパラメータとして使用される。
func (c *Client) FetchCSRF(ctx context.Context) (string, error) {
	page, err := c.FetchPage(ctx, c.root+"/")
	if err != nil {
		return "", fmt.Errorf("CSRFトークンの取得に失敗しました: %w", err)
	}
	token := extractCSRF(page)
	if token == "" {
		return "", fmt.Errorf("ページ中にCSRFトークンが見つかりませんでした")
	}

	c.mu.Lock()
	c.csrfToken = token
	c.mu.Unlock()
	return token, nil
}

// extractCSRF はHTMLページからCSRFトークンを取り出す。見つからなければ空文字列。
func extractCSRF(page string) string {
	idx := strings.Index(page, csrfMarker)
	if idx < 0 {
		return ""
	}
	rest := page[idx+len(csrfMarker):]
	end := strings.IndexByte(rest, '\'')
	if end < 0 {
		return ""
	}
	return rest[:end]
}

// ensureCSRF は保持中のCSRFトークンを返す。未取得なら取得を試みる。
func (c *Client) ensureCSRF(ctx context.Context) (string, error) {
	c.mu.Lock()
	token := c.csrfToken
	c.mu.Unlock()
	if token != "" {
		return token, nil
	}
	return c.FetchCSRF(ctx)
}

// get は共通のHTTP GET処理。スロットルとCookie付与を行う。
func (c *Client) get(ctx context.Context, rawurl string) ([]byte, int, error) {
	if err := c.throttle.Wait(ctx); err != nil {
		return nil, 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawurl, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("HTTPリクエストに失敗しました",
			slog.String("url", rawurl),
			slog.String("error", err.Error()),
		)
		return nil, 0, model.NewTransientNetworkError(err)
	}
	defer resp.Body.Close()

	if c.metrics != nil {
		c.metrics.RecordHTTPStatus(resp.StatusCode)
		c.metrics.RecordAPILatency(time.Since(start))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}
	return body, resp.StatusCode, nil
}

// call はEclipse APIエンドポイントをGETで呼び出す。
// csrf_tokenパラメータを自動付与し、レスポンスをJSONオブジェクトとして返す。
// JSONとして解釈できないレスポンスは {"error": <本文>} として返す。
func (c *Client) call(ctx context.Context, endpoint string, params url.Values) (map[string]json.RawMessage, error) {
	token, err := c.ensureCSRF(ctx)
	if err != nil {
		return nil, err
	}
	params.Set("csrf_token", token)

	body, status, err := c.get(ctx, c.root+endpoint+"?"+params.Encode())
	if err != nil {
		return nil, err
	}
	if status >= http.StatusInternalServerError {
		return nil, model.NewTransientNetworkError(
			fmt.Errorf("APIがステータス %d を返しました: %s", status, endpoint))
	}

	return decodeEnvelope(body), nil
}

// post はEclipse APIエンドポイントをフォームPOSTで呼び出す。
// ウォッチ登録のような副作用系エンドポイントに使用する。
func (c *Client) post(ctx context.Context, endpoint string, form url.Values) (map[string]json.RawMessage, error) {
	token, err := c.ensureCSRF(ctx)
	if err != nil {
		return nil, err
	}
	form.Set("csrf_token", token)

	if err := c.throttle.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.root+endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	if c.cookie != "" {
		req.Header.Set("Cookie", c.cookie)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("HTTPリクエストに失敗しました",
			slog.String("endpoint", endpoint),
			slog.String("error", err.Error()),
		)
		return nil, model.NewTransientNetworkError(err)
	}
	defer resp.Body.Close()

	if c.metrics != nil {
		c.metrics.RecordHTTPStatus(resp.StatusCode)
		c.metrics.RecordAPILatency(time.Since(start))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}
	return decodeEnvelope(body), nil
}

// decodeEnvelope はAPIレスポンス本文をJSONオブジェクトへデコードする。
// オブジェクトとして解釈できない本文は {"error": <本文>} に丸める。
func decodeEnvelope(body []byte) map[string]json.RawMessage {
	var data map[string]json.RawMessage
	if err := json.Unmarshal(body, &data); err != nil {
		text, _ := json.Marshal(string(body))
		return map[string]json.RawMessage{"error": text}
	}
	return data
}

// paginate はページング系エンドポイントの全結果を列挙する。
// 結果リストはkeyで指定されたキーから読み取る。キーが存在しない場合は
// エラーではなく空の列挙として終了する。ページ件数がlimit未満なのに
// サーバーが続きを主張する場合、非公開アイテムの存在を1回だけ警告する。
// 状態の前進はnextCursor（カーソルモードへ移行しoffsetを破棄）、
// nextOffset、offset加算の順で優先される。
func (c *Client) paginate(ctx context.Context, endpoint string, params url.Values, key string, fn PageFunc) error {
	limit := defaultPageLimit
	if v := params.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			limit = n
		}
	}
	warn := true

	for {
		data, err := c.call(ctx, endpoint, params)
		if err != nil {
			return err
		}

		rawResults, ok := data[key]
		if !ok {
			if rawErr, hasErr := data["error"]; hasErr {
				c.logger.Warn("予期しないAPIレスポンスを受信しました",
					slog.String("endpoint", endpoint),
					slog.String("error", string(rawErr)),
				)
			}
			return nil
		}
		var results []json.RawMessage
		if err := json.Unmarshal(rawResults, &results); err != nil {
			return fmt.Errorf("結果リストのパースに失敗しました: %w", err)
		}

		hasMore := false
		if raw, ok := data["hasMore"]; ok {
			_ = json.Unmarshal(raw, &hasMore)
		}

		if len(results) < limit && warn && hasMore {
			warn = false
			c.logger.Warn(warnPrivateDeviations)
		}

		for _, raw := range results {
			if err := fn(raw); err != nil {
				return err
			}
		}

		if !hasMore {
			return nil
		}

		if raw, ok := data["nextCursor"]; ok {
			var cursor string
			_ = json.Unmarshal(raw, &cursor)
			params.Del("offset")
			if cursor != "" {
				params.Set("cursor", cursor)
			} else {
				params.Del("cursor")
			}
		} else if raw, ok := data["nextOffset"]; ok {
			var next *int
			_ = json.Unmarshal(raw, &next)
			if next != nil {
				params.Set("offset", strconv.Itoa(*next))
			} else {
				params.Del("offset")
			}
			params.Del("cursor")
		} else if params.Get("offset") == "" {
			return nil
		} else {
			cur, _ := strconv.Atoi(params.Get("offset"))
			params.Set("offset", strconv.Itoa(cur+len(results)))
		}
	}
}

// decodeDeviation は結果要素をDeviationへデコードする。
// メッセージセンター系エンドポイントは {"deviation": {...}} 形式で包むため、
// ラッパーがあれば中身を取り出す。
func decodeDeviation(raw json.RawMessage) (*model.Deviation, error) {
	var wrapper struct {
		Deviation json.RawMessage `json:"deviation"`
	}
	if err := json.Unmarshal(raw, &wrapper); err == nil &&
		len(wrapper.Deviation) > 0 && string(wrapper.Deviation) != "null" {
		raw = wrapper.Deviation
	}

	var dev model.Deviation
	if err := json.Unmarshal(raw, &dev); err != nil {
		return nil, fmt.Errorf("デビエーションのパースに失敗しました: %w", err)
	}
	return &dev, nil
}

// DeviationInit はデビエーションの詳細を取得する。
// kindは "art" または "journal"。拡張フィールド（ダウンロード記述子、
// 追加メディア、説明文）を含む完全なアイテムが返る。
func (c *Client) DeviationInit(ctx context.Context, deviationID int64, username, kind string) (*model.Deviation, error) {
	params := url.Values{}
	params.Set("deviationid", strconv.FormatInt(deviationID, 10))
	params.Set("username", username)
	if kind != "" {
		params.Set("type", kind)
	}
	params.Set("include_session", "false")
	params.Set("expand", "deviation.related")
	params.Set("da_minor_version", daMinorVersion)

	data, err := c.call(ctx, "/_puppy/dadeviation/init", params)
	if err != nil {
		return nil, err
	}

	raw, ok := data["deviation"]
	if !ok {
		if rawErr, hasErr := data["error"]; hasErr {
			c.logger.Warn("デビエーション詳細の取得に失敗しました",
				slog.Int64("deviation_id", deviationID),
				slog.String("error", string(rawErr)),
			)
		}
		return nil, model.NewMalformedItemError("deviation")
	}
	return decodeDeviation(raw)
}

// GallectionContents はユーザーのギャラリー（またはコレクション）の内容を列挙する。
// kindは "gallery" または "collection"。folderIDが空の場合は全体、
// scrapsがtrueの場合はスクラップフォルダを対象とする。
func (c *Client) GallectionContents(ctx context.Context, username, kind, folderID string, scraps bool, fn DeviationFunc) error {
	params := url.Values{}
	params.Set("username", username)
	params.Set("type", kind)
	if folderID != "" {
		params.Set("folderid", folderID)
	}
	if scraps {
		params.Set("scraps_folder", "true")
	}
	params.Set("offset", "0")
	params.Set("limit", strconv.Itoa(defaultPageLimit))

	return c.paginate(ctx, "/_puppy/dashared/gallection/contents", params, "results", func(raw json.RawMessage) error {
		dev, err := decodeDeviation(raw)
		if err != nil {
			return err
		}
		return fn(dev)
	})
}

// SearchDeviations は検索クエリに一致するデビエーションを列挙する。
// このエンドポイントのみ結果キーが "deviations" である。
func (c *Client) SearchDeviations(ctx context.Context, query string, fn DeviationFunc) error {
	params := url.Values{}
	params.Set("q", query)
	params.Set("offset", "0")
	params.Set("limit", strconv.Itoa(defaultPageLimit))

	return c.paginate(ctx, "/_puppy/dabrowse/search/deviations", params, "deviations", func(raw json.RawMessage) error {
		dev, err := decodeDeviation(raw)
		if err != nil {
			return err
		}
		return fn(dev)
	})
}

// Comments は指定アイテムのコメントスレッドを1ページ分取得する。
// commentIDが空の場合はルートスレッド、指定時はそのコメント配下の
// 返信スレッドを対象とする。ページングは内部で最後まで行う。
func (c *Client) Comments(ctx context.Context, itemID int64, commentID string) ([]model.Comment, error) {
	params := url.Values{}
	params.Set("typeid", "1")
	params.Set("itemid", strconv.FormatInt(itemID, 10))
	if commentID != "" {
		params.Set("commentid", commentID)
	}
	params.Set("limit", "50")

	var comments []model.Comment
	err := c.paginate(ctx, "/_puppy/dashared/comments/thread", params, "thread", func(raw json.RawMessage) error {
		var cm model.Comment
		if err := json.Unmarshal(raw, &cm); err != nil {
			return fmt.Errorf("コメントのパースに失敗しました: %w", err)
		}
		comments = append(comments, cm)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return comments, nil
}

// UserWatch は指定ユーザーのウォッチを登録する。
// プレミアムフォルダ（watchers条件）の解除に使用される。
func (c *Client) UserWatch(ctx context.Context, username string) (bool, error) {
	form := url.Values{}
	form.Set("username", username)

	data, err := c.post(ctx, "/_puppy/dashared/friends/watch", form)
	if err != nil {
		return false, err
	}
	return boolField(data, "success"), nil
}

// UserUnwatch は指定ユーザーのウォッチを解除する。
// ラン終了時の後始末（自動ウォッチの巻き戻し）に使用される。
func (c *Client) UserUnwatch(ctx context.Context, username string) (bool, error) {
	form := url.Values{}
	form.Set("username", username)

	data, err := c.post(ctx, "/_puppy/dashared/friends/unwatch", form)
	if err != nil {
		return false, err
	}
	return boolField(data, "success"), nil
}

// boolField はレスポンスからbool値フィールドを読み取る。欠落時はfalse。
func boolField(data map[string]json.RawMessage, key string) bool {
	raw, ok := data[key]
	if !ok {
		return false
	}
	var v bool
	_ = json.Unmarshal(raw, &v)
	return v
}
