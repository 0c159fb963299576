// Package payment は外部決済プロバイダとの連携を提供する。
// チェックアウトセッションの作成と決済結果Webhookの検証を含む。
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

// CheckoutSession は決済プロバイダが発行したチェックアウトセッション。
// IDはブーストや購入のpayment_refとして保存される。
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"` // ユーザーをリダイレクトする決済ページURL
}

// CheckoutRequest はチェックアウトセッション作成のリクエスト内容。
type CheckoutRequest struct {
	Amount      int    `json:"amount"` // セント単位
	Description string `json:"description"`
	ReferenceID string `json:"reference_id"` // ブーストIDまたは購入ID
	ReturnURL   string `json:"return_url"`   // 決済完了後のリダイレクト先
}

// CheckoutClient はチェックアウトセッション作成のインターフェース。
// サービス層はこのインターフェースに依存し、テストではモックを使用する。
type CheckoutClient interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutRequest) (*CheckoutSession, error)
}

// Client は決済プロバイダAPIのクライアント。
type Client struct {
	httpClient *http.Client
	logger     *slog.Logger
	endpoint   string
}

// NewClient はClientの新しいインスタンスを生成する。
// httpClientにはSSRF防止付きのクライアントを渡すことを想定している。
func NewClient(httpClient *http.Client, logger *slog.Logger, endpoint string) *Client {
	return &Client{
		httpClient: httpClient,
		logger:     logger,
		endpoint:   endpoint,
	}
}

// CreateCheckoutSession は決済プロバイダにチェックアウトセッションの作成を依頼する。
// 返されたセッションIDを決済参照として保存し、URLへユーザーをリダイレクトさせる。
func (c *Client) CreateCheckoutSession(ctx context.Context, checkoutReq CheckoutRequest) (*CheckoutSession, error) {
	if checkoutReq.Amount <= 0 {
		return nil, fmt.Errorf("決済金額は正の値を指定してください: %d", checkoutReq.Amount)
	}

	payload, err := json.Marshal(checkoutReq)
	if err != nil {
		return nil, fmt.Errorf("リクエストボディの構築に失敗しました: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/checkout/sessions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("HTTPリクエストの作成に失敗しました: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "Storyrank/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("決済プロバイダの呼び出しに失敗しました",
			slog.String("error", err.Error()),
			slog.String("reference_id", checkoutReq.ReferenceID),
		)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		c.logger.Error("決済プロバイダがエラーステータスを返しました",
			slog.Int("http_status", resp.StatusCode),
			slog.String("reference_id", checkoutReq.ReferenceID),
		)
		return nil, fmt.Errorf("決済プロバイダがステータス %d を返しました", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("レスポンスボディの読み取りに失敗しました: %w", err)
	}

	var session CheckoutSession
	if err := json.Unmarshal(body, &session); err != nil {
		c.logger.Error("決済プロバイダのレスポンスのパースに失敗しました",
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("レスポンスJSONのパースに失敗しました: %w", err)
	}

	if session.ID == "" {
		return nil, fmt.Errorf("決済プロバイダのレスポンスにセッションIDが含まれていません")
	}

	return &session, nil
}

// compile-time interface check
var _ CheckoutClient = (*Client)(nil)
