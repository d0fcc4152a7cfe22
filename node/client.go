// Package node talks to the chain over the tendermint RPC: broadcasting
// transactions, reading the chain height and listening for confirmations.
package node

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	abcitypes "github.com/tendermint/tendermint/abci/types"
	"github.com/tendermint/tendermint/rpc/client"
	"github.com/tendermint/tendermint/types"
)

type Client struct {
	rpcURL     string
	httpClient *client.HTTP
}

func NewClient(rpcURL string) (*Client, error) {
	httpClient := client.NewHTTP(rpcURL, "/websocket")
	err := httpClient.Start()
	if err != nil {
		return nil, errors.Wrap(err, "cannot start websocket http client")
	}

	log.WithField("url", rpcURL).Info("connected to node")

	return &Client{
		rpcURL:     rpcURL,
		httpClient: httpClient,
	}, nil
}

func (t *Client) Stop() error {
	return t.httpClient.Stop()
}

// GetChainHeight returns the latest block height the node has seen.
func (t *Client) GetChainHeight() (uint64, error) {
	status, err := t.httpClient.Status()
	if err != nil {
		return 0, errors.Wrap(err, "cannot get node status")
	}

	return uint64(status.SyncInfo.LatestBlockHeight), nil
}

// Broadcast submits a transaction and waits for one tx event as a cheap
// confirmation the node accepted it.
func (t *Client) Broadcast(transactionBytes []byte) error {
	result, err := t.httpClient.BroadcastTxSync(transactionBytes)
	if err != nil {
		return errors.Wrap(err, "cannot broadcast transaction")
	}

	log.WithFields(log.Fields{"code": result.Code, "log": result.Log}).Info("broadcast transaction")

	err = t.waitForOneEvent()
	if err != nil {
		return errors.Wrap(err, "cannot waitForOneEvent after broadcast")
	}

	return nil
}

func (t *Client) waitForOneEvent() error {
	const timeoutSeconds = 5

	evt, err := client.WaitForOneEvent(t.httpClient, types.EventTx, timeoutSeconds*time.Second)
	if err != nil {
		return errors.Wrap(err, "cannot WaitForOneEvent")
	}

	logTxEvent(evt)

	return nil
}

func logTxEvent(evt types.TMEventData) {
	txe, ok := evt.(types.EventDataTx)
	if !ok {
		return
	}

	log.WithFields(log.Fields{"code": txe.Result.Code, "log": txe.Result.Log}).Debug("got tx event")

	for _, event := range txe.Result.Events {
		for _, kv := range event.Attributes {
			log.WithFields(log.Fields{
				"type":  event.Type,
				"key":   string(kv.Key),
				"value": string(kv.Value),
			}).Debug("tx event attribute")
		}
	}
}

func (t *Client) listenForTxEvents(onEvent func(evt types.TMEventData)) error {
	const timeoutSeconds = 60

	for {
		evt, err := client.WaitForOneEvent(t.httpClient, types.EventTx, timeoutSeconds*time.Second)
		if err != nil {
			if err.Error() == "timed out waiting for event" {
				log.WithField("seconds", timeoutSeconds).Debug("waiting for tx events")
			} else {
				return errors.Wrap(err, "cannot WaitForOneEvent")
			}
		} else {
			onEvent(evt)
		}
	}
}

// ListenForConfirmedTx blocks, calling onTx with the transaction id of every
// successfully committed transfer. Used to apply network confirmations to
// the wallet as they happen.
func (t *Client) ListenForConfirmedTx(onTx func(transactionID []byte)) error {
	return t.listenForTxEvents(func(evt types.TMEventData) {
		txe, ok := evt.(types.EventDataTx)
		if !ok {
			return
		}
		if txe.Result.Code != abcitypes.CodeTypeOK {
			return
		}

		logTxEvent(evt)

		for _, event := range txe.Result.Events {
			if event.Type != "transfer" {
				continue
			}
			for _, kv := range event.Attributes {
				if string(kv.Key) == "id" {
					onTx(kv.Value)
				}
			}
		}
	})
}
