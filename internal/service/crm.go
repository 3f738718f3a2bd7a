package service

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/leadwise/intel-server-go/internal/config"
	apperrors "github.com/leadwise/intel-server-go/internal/errors"
	"github.com/leadwise/intel-server-go/internal/model"
)

// CRMClient performs the upsert against the external CRM. Writes are keyed
// by visitor_id, so repeated syncs update the same record.
type CRMClient struct {
	baseURL string
	tokens  *TokenManager
	client  *http.Client
}

func NewCRMClient(baseURL string, tokens *TokenManager, timeout time.Duration) *CRMClient {
	return &CRMClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

// SyncResult is the outcome of one upsert attempt cycle.
type SyncResult struct {
	CRMRecordID string
	Created     bool
}

type crmUpsertRequest struct {
	Data                 []crmLeadRecord `json:"data"`
	DuplicateCheckFields []string        `json:"duplicate_check_fields"`
}

type crmLeadRecord struct {
	VisitorID         string `json:"Visitor_ID"`
	LeadSource        string `json:"Lead_Source"`
	LeadStatus        string `json:"Lead_Status"`
	Rating            string `json:"Rating"`
	IntelligenceScore int    `json:"Intelligence_Score"`
	Intent            string `json:"AI_Intent"`
	Sentiment         string `json:"AI_Sentiment"`
	BudgetSignal      string `json:"Budget_Signal"`
	RecommendedAction string `json:"Recommended_Action"`
	Competitor        string `json:"Competitor,omitempty"`
	Description       string `json:"Description"`
}

type crmUpsertResponse struct {
	Data []struct {
		Code    string `json:"code"`
		Status  string `json:"status"`
		Action  string `json:"action"`
		Details struct {
			ID string `json:"id"`
		} `json:"details"`
	} `json:"data"`
}

// Upsert writes the lead to the CRM with the retry policy of the sync
// contract: a 401/403 forces exactly one token refresh and one retry;
// transient failures (network, 5xx, 429) retry with bounded exponential
// backoff; anything else fails immediately.
func (c *CRMClient) Upsert(ctx context.Context, lead *model.Lead) (*SyncResult, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = config.SyncInitialInterval
	policy.MaxInterval = config.SyncMaxInterval

	var result *SyncResult
	attempt := 0

	operation := func() error {
		attempt++
		res, err := c.upsertOnce(ctx, lead, true)
		if err != nil {
			if isTransient(err) {
				log.Warn().Err(err).Int("attempt", attempt).Str("visitorId", lead.VisitorID).Msg("transient crm failure, will retry")
				return err
			}
			return backoff.Permanent(err)
		}
		result = res
		return nil
	}

	err := backoff.Retry(operation,
		backoff.WithContext(backoff.WithMaxRetries(policy, config.SyncMaxAttempts-1), ctx))
	if err != nil {
		return nil, apperrors.SyncFailed(lead.VisitorID, err)
	}
	return result, nil
}

type transientError struct{ cause error }

func (e *transientError) Error() string { return e.cause.Error() }
func (e *transientError) Unwrap() error { return e.cause }

func isTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}

func (c *CRMClient) upsertOnce(ctx context.Context, lead *model.Lead, allowRefresh bool) (*SyncResult, error) {
	token, err := c.tokens.GetValidToken(ctx)
	if err != nil {
		// A stale token may still be accepted for one retry cycle.
		if stale := c.tokens.StaleToken(); stale != "" {
			log.Warn().Str("visitorId", lead.VisitorID).Msg("token refresh failed, attempting sync with stale token")
			token = stale
		} else {
			return nil, err
		}
	}

	body, err := json.Marshal(crmUpsertRequest{
		Data:                 []crmLeadRecord{buildLeadRecord(lead)},
		DuplicateCheckFields: []string{"Visitor_ID"},
	})
	if err != nil {
		return nil, fmt.Errorf("marshal upsert payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/crm/v2/Leads/upsert", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create upsert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Zoho-oauthtoken "+token)

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, &transientError{fmt.Errorf("crm request failed: %w", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		if !allowRefresh {
			return nil, fmt.Errorf("crm rejected token after refresh (status %d)", resp.StatusCode)
		}
		log.Warn().Int("status", resp.StatusCode).Msg("crm token rejected, forcing refresh and retrying once")
		c.tokens.ForceRefresh()
		return c.upsertOnce(ctx, lead, false)

	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &transientError{fmt.Errorf("crm status %d", resp.StatusCode)}

	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return nil, fmt.Errorf("crm upsert failed with status %d", resp.StatusCode)
	}

	var upsert crmUpsertResponse
	if err := json.NewDecoder(resp.Body).Decode(&upsert); err != nil {
		return nil, fmt.Errorf("decode upsert response: %w", err)
	}
	if len(upsert.Data) == 0 || upsert.Data[0].Details.ID == "" {
		return nil, fmt.Errorf("upsert response missing record id")
	}

	return &SyncResult{
		CRMRecordID: upsert.Data[0].Details.ID,
		Created:     upsert.Data[0].Action == "insert",
	}, nil
}

func buildLeadRecord(lead *model.Lead) crmLeadRecord {
	record := crmLeadRecord{
		VisitorID:         lead.VisitorID,
		LeadSource:        "Chat Widget - Lead Intelligence",
		LeadStatus:        categoryToStatus(lead.Category),
		Rating:            string(lead.Category),
		IntelligenceScore: lead.Score,
		Intent:            string(lead.Signals.Intent),
		Sentiment:         string(lead.Signals.Sentiment),
		BudgetSignal:      string(lead.Signals.BudgetSignal),
		RecommendedAction: string(lead.Signals.RecommendedAction),
		Description:       formatDescription(lead),
	}
	if len(lead.Signals.CompetitorMentions) > 0 {
		record.Competitor = strings.Join(lead.Signals.CompetitorMentions, ", ")
	}
	return record
}

func categoryToStatus(category model.ScoreCategory) string {
	switch category {
	case model.CategoryHot:
		return "Contacted"
	case model.CategoryWarm:
		return "Open"
	default:
		return "Nurture"
	}
}

func formatDescription(lead *model.Lead) string {
	var b strings.Builder
	b.WriteString("AI-analyzed lead from chat widget\n\n")
	fmt.Fprintf(&b, "INTELLIGENCE SUMMARY:\n%s\n", lead.Summary)
	if len(lead.Signals.PainPoints) > 0 {
		b.WriteString("\nIDENTIFIED PAIN POINTS:\n")
		for _, point := range lead.Signals.PainPoints {
			fmt.Fprintf(&b, "- %s\n", point)
		}
	}
	if lead.BattleCard != nil {
		fmt.Fprintf(&b, "\nCOMPETITIVE NOTES:\n%s\n", *lead.BattleCard)
	}
	return strings.TrimSpace(b.String())
}
