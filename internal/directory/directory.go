package directory

import (
	"context"
	"encoding/json"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/signalbot/gotick/internal/domain"
)

var log = logrus.WithField("component", "directory")

// Lookup 标的目录的只读查询接口（核心只依赖这个接口）
type Lookup interface {
	LookupSymbol(token uint32) (string, bool)
	LookupToken(symbol string) (uint32, bool)
	LotSize(symbol string) float64
	Ordering(symbol string) int
	IsFeedSymbol(symbol string) bool
}

// Service 标的目录：启动时从元数据源构建，加载后只读
type Service struct {
	byToken     map[uint32]domain.Instrument
	bySymbol    map[string]domain.Instrument
	feedSymbols map[string]struct{} // 走外部 feed 的 symbol（加密/合成标的）
}

// instrumentRow 元数据源里的一行（JSON）
type instrumentRow struct {
	Token   uint32  `json:"instrument_token"`
	Symbol  string  `json:"tradingsymbol"`
	LotSize float64 `json:"lot_size"`
}

// New 从标的列表构建目录，展示排序按 symbol 字典序分配
func New(instruments []domain.Instrument, feedSymbols []string) *Service {
	sorted := make([]domain.Instrument, len(instruments))
	copy(sorted, instruments)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Symbol < sorted[j].Symbol })

	s := &Service{
		byToken:     make(map[uint32]domain.Instrument, len(sorted)),
		bySymbol:    make(map[string]domain.Instrument, len(sorted)),
		feedSymbols: make(map[string]struct{}, len(feedSymbols)),
	}
	for i := range sorted {
		sorted[i].Ordering = i
		sorted[i].Symbol = strings.ToUpper(sorted[i].Symbol)
		if sorted[i].LotSize <= 0 {
			sorted[i].LotSize = 1
		}
		if sorted[i].Token != 0 {
			s.byToken[sorted[i].Token] = sorted[i]
		}
		s.bySymbol[sorted[i].Symbol] = sorted[i]
	}
	for _, sym := range feedSymbols {
		s.feedSymbols[strings.ToUpper(strings.TrimSpace(sym))] = struct{}{}
	}
	return s
}

// LoadFromFile 从本地 JSON 元数据文件构建目录
func LoadFromFile(path string, feedSymbols []string) (*Service, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "读取标的元数据文件失败: %s", path)
	}
	return parseRows(data, feedSymbols)
}

// Fetch 从 HTTP 元数据源构建目录（启动时一次性拉取）
func Fetch(ctx context.Context, url string, feedSymbols []string) (*Service, error) {
	client := resty.New().
		SetTimeout(30 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(1 * time.Second)

	resp, err := client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, errors.Wrapf(err, "拉取标的元数据失败: %s", url)
	}
	if resp.IsError() {
		return nil, errors.Errorf("拉取标的元数据失败: %s 返回 %d", url, resp.StatusCode())
	}
	return parseRows(resp.Body(), feedSymbols)
}

func parseRows(data []byte, feedSymbols []string) (*Service, error) {
	var rows []instrumentRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, errors.Wrap(err, "解析标的元数据失败")
	}
	instruments := make([]domain.Instrument, 0, len(rows))
	for _, r := range rows {
		if r.Symbol == "" {
			continue
		}
		instruments = append(instruments, domain.Instrument{
			Token:   r.Token,
			Symbol:  r.Symbol,
			LotSize: r.LotSize,
		})
	}
	log.Infof("标的目录已加载: %d 个标的", len(instruments))
	return New(instruments, feedSymbols), nil
}

// LookupSymbol token → symbol
func (s *Service) LookupSymbol(token uint32) (string, bool) {
	ins, ok := s.byToken[token]
	if !ok {
		return "", false
	}
	return ins.Symbol, true
}

// LookupToken symbol → token
func (s *Service) LookupToken(symbol string) (uint32, bool) {
	ins, ok := s.bySymbol[strings.ToUpper(symbol)]
	if !ok || ins.Token == 0 {
		return 0, false
	}
	return ins.Token, true
}

// LotSize symbol 的每手数量，未知标的默认 1
func (s *Service) LotSize(symbol string) float64 {
	if ins, ok := s.bySymbol[strings.ToUpper(symbol)]; ok {
		return ins.LotSize
	}
	return 1
}

// Ordering 展示排序索引，未知标的排最后
func (s *Service) Ordering(symbol string) int {
	if ins, ok := s.bySymbol[strings.ToUpper(symbol)]; ok {
		return ins.Ordering
	}
	return int(^uint(0) >> 1)
}

// IsFeedSymbol symbol 是否走外部 feed（信号的 SELL 阈值回退链用）
func (s *Service) IsFeedSymbol(symbol string) bool {
	_, ok := s.feedSymbols[strings.ToUpper(symbol)]
	return ok
}

// Instruments 返回全部标的（副本，展示层用）
func (s *Service) Instruments() []domain.Instrument {
	out := make([]domain.Instrument, 0, len(s.bySymbol))
	for _, ins := range s.bySymbol {
		out = append(out, ins)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ordering < out[j].Ordering })
	return out
}
