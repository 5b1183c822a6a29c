package upstream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"FlowPull/internal/domain/models"
	drepo "FlowPull/internal/domain/repository"
	xhttp "FlowPull/pkg/http"
	"FlowPull/pkg/logger"
	"FlowPull/pkg/util"

	"github.com/shopspring/decimal"
)

const (
	apiID     = "ka10060"
	chartPath = "/api/dostk/chart"
)

// Client talks to the investor-flow chart endpoint.
type Client struct {
	http    *xhttp.Client
	baseURL string
	auth    drepo.AuthProvider
	logger  *logger.Logger
}

// NewClient creates an upstream chart client.
func NewClient(hc *xhttp.Client, baseURL string, auth drepo.AuthProvider, lgr *logger.Logger) *Client {
	return &Client{
		http:    hc,
		baseURL: strings.TrimRight(baseURL, "/"),
		auth:    auth,
		logger:  lgr,
	}
}

type chartRequest struct {
	Date      string `json:"dt"`
	Code      string `json:"stk_cd"`
	AmountQty string `json:"amt_qty_tp"`
	TradeType string `json:"trde_tp"`
	Unit      string `json:"unit_tp"`
}

type chartRow struct {
	Date         string `json:"dt"`
	CurPrice     string `json:"cur_prc"`
	PredPre      string `json:"pred_pre"`
	FluRt        string `json:"flu_rt"`
	AccTradeQty  string `json:"acc_trde_qty"`
	AccTradeAmt  string `json:"acc_trde_prica"`
	Individual   string `json:"ind_invsr"`
	Foreigner    string `json:"frgnr_invsr"`
	Institution  string `json:"orgn"`
	FinInvest    string `json:"fnnc_invt"`
	Insurance    string `json:"insrnc"`
	InvestTrust  string `json:"invtrt"`
	EtcFinance   string `json:"etc_fnnc"`
	Bank         string `json:"bank"`
	PensionFund  string `json:"penfnd_etc"`
	PrivateFund  string `json:"samo_fund"`
	Nation       string `json:"natn"`
	EtcCorp      string `json:"etc_corp"`
	NationForegn string `json:"natfor"`
}

type chartResponse struct {
	ReturnCode int        `json:"return_code"`
	ReturnMsg  string     `json:"return_msg"`
	Rows       []chartRow `json:"stk_invsr_orgn_chart"`
}

// FetchPage fetches one page. The continuation cursor comes back in the
// cont-yn and next-key response headers.
func (c *Client) FetchPage(ctx context.Context, req PageRequest) (*Page, error) {
	token, err := c.auth.ValidToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("get token: %w", err)
	}

	headers := map[string]string{
		"Content-Type":  "application/json;charset=UTF-8",
		"Authorization": "Bearer " + token,
		"api-id":        apiID,
	}
	if req.ContYN != "" {
		headers["cont-yn"] = req.ContYN
	}
	if req.NextKey != "" {
		headers["next-key"] = req.NextKey
	}

	body := chartRequest{
		Date:      util.FormatYMD(req.Date),
		Code:      req.Instrument,
		AmountQty: req.AmountQty,
		TradeType: req.TradeType,
		Unit:      req.Unit,
	}

	resp, err := c.http.SendRequest(ctx, &xhttp.RequestOptions{
		Method:  xhttp.MethodPost,
		URL:     c.baseURL + chartPath,
		Headers: headers,
		Body:    body,
	})
	if err != nil {
		return nil, fmt.Errorf("chart request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{Code: resp.StatusCode, Body: string(b)}
	}

	var parsed chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode chart response: %w", err)
	}
	if parsed.ReturnCode != 0 {
		return nil, fmt.Errorf("upstream return_code %d: %s", parsed.ReturnCode, parsed.ReturnMsg)
	}

	page := &Page{
		ContYN:  resp.Header.Get("cont-yn"),
		NextKey: resp.Header.Get("next-key"),
	}

	now := time.Now()
	for _, row := range parsed.Rows {
		flow, err := c.toFlow(req, row, now)
		if err != nil {
			c.logger.Warn("skipping malformed row",
				logger.String("instrument", req.Instrument),
				logger.String("dt", row.Date),
				logger.Error(err))
			continue
		}
		page.Rows = append(page.Rows, flow)
	}

	return page, nil
}

func (c *Client) toFlow(req PageRequest, row chartRow, fetchedAt time.Time) (models.DailyFlow, error) {
	date, err := util.ParseYMD(row.Date)
	if err != nil {
		return models.DailyFlow{}, err
	}

	fluct, err := decimal.NewFromString(strings.TrimPrefix(strings.TrimSpace(row.FluRt), "+"))
	if err != nil {
		fluct = decimal.Zero
	}

	flow := models.DailyFlow{
		Instrument:    req.Instrument,
		Date:          date,
		TradeType:     req.TradeType,
		AmountQtyType: req.AmountQty,
		Unit:          models.UnitType(req.Unit),
		CurrentPrice:  util.ParseAbsInt64(row.CurPrice),
		PrevDayDiff:   util.ParseSignedInt64(row.PredPre),
		FluctRate:     fluct,
		AccVolume:     util.ParseSignedInt64(row.AccTradeQty),
		AccValue:      util.ParseSignedInt64(row.AccTradeAmt),
		FetchedAt:     fetchedAt,
	}

	flow.Net[models.CatIndividual] = util.ParseSignedInt64(row.Individual)
	flow.Net[models.CatForeigner] = util.ParseSignedInt64(row.Foreigner)
	flow.Net[models.CatInstitution] = util.ParseSignedInt64(row.Institution)
	flow.Net[models.CatFinancialInvest] = util.ParseSignedInt64(row.FinInvest)
	flow.Net[models.CatInsurance] = util.ParseSignedInt64(row.Insurance)
	flow.Net[models.CatInvestTrust] = util.ParseSignedInt64(row.InvestTrust)
	flow.Net[models.CatEtcFinance] = util.ParseSignedInt64(row.EtcFinance)
	flow.Net[models.CatBank] = util.ParseSignedInt64(row.Bank)
	flow.Net[models.CatPensionFund] = util.ParseSignedInt64(row.PensionFund)
	flow.Net[models.CatPrivateFund] = util.ParseSignedInt64(row.PrivateFund)
	flow.Net[models.CatNation] = util.ParseSignedInt64(row.Nation)
	flow.Net[models.CatEtcCorporation] = util.ParseSignedInt64(row.EtcCorp)
	flow.Net[models.CatNationForeign] = util.ParseSignedInt64(row.NationForegn)
	flow.Net[models.CatForeignerInstitution] = flow.Net[models.CatForeigner] + flow.Net[models.CatInstitution]

	return flow, nil
}
