package evm

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/zynpay/zynpay_service/internal/domain/entities"
)

type eventData struct {
	Amount       *big.Int
	TokenAddress common.Address
}

// FilterPaymentEvents fetches and decodes one event stream from the payment contract.
func (g *Gateway) FilterPaymentEvents(ctx context.Context, chainID int64, filter entities.EventFilter) ([]entities.PaymentEvent, error) {
	c, err := g.chain(chainID)
	if err != nil {
		return nil, err
	}

	query, err := buildFilterQuery(c.contract, filter)
	if err != nil {
		return nil, err
	}

	logs, err := read(c, func() ([]types.Log, error) {
		return c.backend.FilterLogs(ctx, query)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s logs: %w", filter.Kind, err)
	}

	events := make([]entities.PaymentEvent, 0, len(logs))
	for _, lg := range logs {
		if lg.Removed {
			continue
		}
		ev, err := decodePaymentLog(filter.Kind, lg)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}

func buildFilterQuery(contract common.Address, filter entities.EventFilter) (ethereum.FilterQuery, error) {
	event, ok := paymentContractABI.Events[string(filter.Kind)]
	if !ok {
		return ethereum.FilterQuery{}, fmt.Errorf("unknown payment event %q", filter.Kind)
	}

	// topic layout: [signature, paymentId, from|by, to]
	topics := [][]common.Hash{{event.ID}}
	if filter.PaymentID != "" {
		topics = append(topics, []common.Hash{common.HexToHash(filter.PaymentID)})
	}
	if filter.Kind == entities.PaymentEventSent && (filter.From != "" || filter.To != "") {
		if len(topics) == 1 {
			topics = append(topics, nil)
		}
		topics = append(topics, addressTopic(filter.From), addressTopic(filter.To))
	}

	return ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(filter.FromBlock),
		ToBlock:   new(big.Int).SetUint64(filter.ToBlock),
		Addresses: []common.Address{contract},
		Topics:    topics,
	}, nil
}

func addressTopic(addr string) []common.Hash {
	if addr == "" {
		return nil
	}
	return []common.Hash{common.BytesToHash(common.HexToAddress(addr).Bytes())}
}

func decodePaymentLog(kind entities.PaymentEventKind, lg types.Log) (entities.PaymentEvent, error) {
	wantTopics := 3
	if kind == entities.PaymentEventSent {
		wantTopics = 4
	}
	if len(lg.Topics) < wantTopics {
		return entities.PaymentEvent{}, fmt.Errorf("%s log %s:%d has %d topics", kind, lg.TxHash.Hex(), lg.Index, len(lg.Topics))
	}

	var data eventData
	if err := paymentContractABI.UnpackIntoInterface(&data, string(kind), lg.Data); err != nil {
		return entities.PaymentEvent{}, fmt.Errorf("failed to decode %s log: %w", kind, err)
	}

	ev := entities.PaymentEvent{
		Kind:         kind,
		PaymentID:    lg.Topics[1].Hex(),
		Amount:       data.Amount,
		TokenAddress: data.TokenAddress.Hex(),
		BlockNumber:  lg.BlockNumber,
		BlockHash:    lg.BlockHash.Hex(),
		LogIndex:     lg.Index,
		TxHash:       lg.TxHash.Hex(),
	}
	if kind == entities.PaymentEventSent {
		ev.From = common.BytesToAddress(lg.Topics[2].Bytes()).Hex()
		ev.To = common.BytesToAddress(lg.Topics[3].Bytes()).Hex()
	} else {
		ev.By = common.BytesToAddress(lg.Topics[2].Bytes()).Hex()
	}
	return ev, nil
}
