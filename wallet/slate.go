package wallet

import (
	"bytes"
	"encoding/hex"
	"encoding/json"

	"github.com/blockcypher/libgrin/core"
	"github.com/blockcypher/libgrin/libwallet"
	"github.com/google/uuid"
	"github.com/olegabu/go-secp256k1-zkp"
	"github.com/pkg/errors"

	"github.com/grinpp/go-grinwallet/ledger"
)

// BuildSendSlate starts a transaction: selects and locks coins covering
// amount plus fee, creates the change output, and produces the slate for the
// receiver with our public excess and public nonce in participant 0. The
// private blind and nonce stay behind in a SavedSlate keyed by the slate ID.
func (t *Wallet) BuildSendSlate(
	amount uint64,
	feeBase uint64,
	message string,
	strategy SelectionStrategy,
) (
	slateBytes []byte,
	err error,
) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if amount == 0 {
		return nil, errors.Wrap(ErrInvalidAmount, "cannot send zero amount")
	}

	outputs, err := t.db.ListOutputs(t.username)
	if err != nil {
		return nil, errors.Wrap(err, "cannot ListOutputs")
	}

	inputs, change, fee, err := selectCoins(outputs, amount, feeBase, strategy)
	if err != nil {
		return nil, err
	}

	// collect slate inputs and re-derive their blinding factors from the
	// child key indexes; collected as negative to subtract from the change
	// output's blind
	slateInputs := make([]core.Input, len(inputs))
	inputBlinds := make([][]byte, len(inputs))
	for index, input := range inputs {
		blind, err := t.secret(input.Index)
		if err != nil {
			return nil, errors.Wrapf(err, "cannot get blind for input %s", input.Commit)
		}
		inputBlinds[index] = blind[:]
		slateInputs[index] = core.Input{
			Features: input.Features,
			Commit:   input.Commit,
		}
	}

	// create change output and remember its blinding factor
	var outputBlinds [][]byte
	var slateOutputs []core.Output
	var changeOutput Output
	if change > 0 {
		var changeBlind [32]byte
		changeOutput, changeBlind, err = t.createOutput(change, core.PlainOutput)
		if err != nil {
			return nil, errors.Wrap(err, "cannot create change output")
		}
		outputBlinds = append(outputBlinds, changeBlind[:])
		slateOutputs = append(slateOutputs, changeOutput.Output)
	}

	// the kernel offset hides which kernel belongs to which transaction once
	// kernels are aggregated in a block; it is subtracted from our excess and
	// published in the transaction instead
	offset, err := t.nonce()
	if err != nil {
		return nil, errors.Wrap(err, "cannot get secret for offset")
	}

	// sum up the change and input blinding factors with the offset and
	// calculate the public key of the sum
	senderBlind, err := secp256k1.BlindSum(t.context, outputBlinds, append(inputBlinds, offset[:]))
	if err != nil {
		return nil, errors.Wrap(err, "cannot sum blinding factors")
	}
	publicBlind, err := pubKeyFromSecretKey(t.context, senderBlind[:])
	if err != nil {
		return nil, errors.Wrap(err, "cannot create publicBlindExcess")
	}

	// generate secret nonce and calculate its public key
	nonce, err := t.nonce()
	if err != nil {
		return nil, errors.Wrap(err, "cannot get secret for nonce")
	}
	publicNonce, err := pubKeyFromSecretKey(t.context, nonce[:])
	if err != nil {
		return nil, errors.Wrap(err, "cannot create publicNonce")
	}

	var slateMessage *string
	if message != "" {
		slateMessage = &message
	}

	slate := Slate{Slate: libwallet.Slate{
		VersionInfo: libwallet.VersionCompatInfo{
			Version:            3,
			OrigVersion:        3,
			BlockHeaderVersion: 2,
		},
		NumParticipants: 2,
		ID:              uuid.New(),
		Transaction: core.Transaction{
			Offset: hex.EncodeToString(offset[:]),
			Body: core.TransactionBody{
				Inputs:  slateInputs,
				Outputs: slateOutputs,
				Kernels: []core.TxKernel{{
					Features:   core.PlainKernel,
					Fee:        core.Uint64(fee),
					LockHeight: 0,
					Excess:     "000000000000000000000000000000000000000000000000000000000000000000",
					ExcessSig:  "00000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000000",
				}},
			},
		},
		Amount:     core.Uint64(amount),
		Fee:        core.Uint64(fee),
		Height:     0,
		LockHeight: 0,
		ParticipantData: []libwallet.ParticipantData{{
			ID:                0,
			PublicBlindExcess: publicBlind.Hex(t.context),
			PublicNonce:       publicNonce.Hex(t.context),
			PartSig:           nil,
			Message:           slateMessage,
			MessageSig:        nil,
		}},
	}}

	slateBytes, err = json.Marshal(slate)
	if err != nil {
		return nil, errors.Wrap(err, "cannot marshal slate to json")
	}

	// everything that can fail has succeeded, commit the state changes:
	// lock the inputs, save the change output, save the slate secrets

	for _, input := range inputs {
		input.Status = OutputLocked
		err = t.db.PutOutput(t.username, input)
		if err != nil {
			return nil, errors.Wrap(err, "cannot lock input")
		}
	}

	if change > 0 {
		err = t.db.PutOutput(t.username, changeOutput)
		if err != nil {
			return nil, errors.Wrap(err, "cannot PutOutput")
		}
	}

	savedSlate := &SavedSlate{
		Slate:  slate,
		Blind:  senderBlind,
		Nonce:  nonce,
		Status: SlateSent,
	}
	err = t.db.PutSenderSlate(t.username, savedSlate)
	if err != nil {
		return nil, errors.Wrap(err, "cannot PutSenderSlate")
	}

	return slateBytes, nil
}

// AddReceiverData fills in the receiver's side of a slate: a new output for
// the amount and a partial signature over the aggregate excess and nonce.
// A slate whose ID has already been answered returns ok false with no error;
// the sender may have resent it and the caller decides how to surface that.
func (t *Wallet) AddReceiverData(slateBytes []byte, message string) (responseBytes []byte, ok bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var slate = Slate{}
	err = json.Unmarshal(slateBytes, &slate)
	if err != nil {
		return nil, false, errors.Wrap(ErrInvalidSlate, "cannot unmarshal json to slate")
	}

	err = validateIncomingSlate(t.context, &slate)
	if err != nil {
		return nil, false, err
	}

	slateID, err := slate.ID.MarshalText()
	if err != nil {
		return nil, false, errors.Wrap(ErrInvalidSlate, "cannot marshal slate id")
	}

	answered, err := t.db.HasReceiverSlate(t.username, slateID)
	if err != nil {
		return nil, false, errors.Wrap(err, "cannot HasReceiverSlate")
	}
	if answered {
		return nil, false, nil
	}

	value := uint64(slate.Amount)

	// create receiver output and calculate the public key of its blind
	walletOutput, receiverBlind, err := t.createOutput(value, core.PlainOutput)
	if err != nil {
		return nil, false, errors.Wrap(err, "cannot create receiver output")
	}
	receiverPublicBlind, err := pubKeyFromSecretKey(t.context, receiverBlind[:])
	if err != nil {
		return nil, false, errors.Wrap(err, "cannot create publicBlindExcess")
	}

	// choose receiver nonce and calculate its public key
	receiverNonce, err := t.nonce()
	if err != nil {
		return nil, false, errors.Wrap(err, "cannot get secret for nonce")
	}
	receiverPublicNonce, err := pubKeyFromSecretKey(t.context, receiverNonce[:])
	if err != nil {
		return nil, false, errors.Wrap(err, "cannot create publicNonce")
	}

	senderPublicBlind := t.context.PublicKeyFromHex(slate.ParticipantData[0].PublicBlindExcess)
	senderPublicNonce := t.context.PublicKeyFromHex(slate.ParticipantData[0].PublicNonce)

	sumPublicBlinds, err := sumPubKeys(t.context, []*secp256k1.PublicKey{senderPublicBlind, receiverPublicBlind})
	if err != nil {
		return nil, false, errors.Wrap(err, "cannot sum public blinds")
	}
	sumPublicNonces, err := sumPubKeys(t.context, []*secp256k1.PublicKey{senderPublicNonce, receiverPublicNonce})
	if err != nil {
		return nil, false, errors.Wrap(err, "cannot sum public nonces")
	}

	// the Schnorr challenge message commits to the kernel
	msg := ledger.KernelSignatureMessage(slate.Transaction.Body.Kernels[0])

	receiverPartSig, err := secp256k1.AggsigSignPartial(
		t.context,
		receiverBlind[:], receiverNonce[:],
		sumPublicNonces, sumPublicBlinds,
		msg,
	)
	if err != nil {
		return nil, false, errors.Wrap(err, "cannot calculate receiver partial signature")
	}

	receiverPartSigBytes := secp256k1.AggsigSignaturePartialSerialize(&receiverPartSig)
	receiverPartSigString := hex.EncodeToString(receiverPartSigBytes[:])

	var slateMessage *string
	if message != "" {
		slateMessage = &message
	}

	slate.ParticipantData = append(slate.ParticipantData, libwallet.ParticipantData{
		ID:                1,
		PublicBlindExcess: receiverPublicBlind.Hex(t.context),
		PublicNonce:       receiverPublicNonce.Hex(t.context),
		PartSig:           &receiverPartSigString,
		Message:           slateMessage,
		MessageSig:        nil,
	})

	slate.Transaction.Body.Outputs = append(slate.Transaction.Body.Outputs, walletOutput.Output)

	responseBytes, err = json.Marshal(slate)
	if err != nil {
		return nil, false, errors.Wrap(err, "cannot marshal slate to json")
	}

	err = t.db.PutOutput(t.username, walletOutput)
	if err != nil {
		return nil, false, errors.Wrap(err, "cannot PutOutput")
	}

	receiverSlate := &SavedSlate{
		Slate:  slate,
		Nonce:  receiverNonce,
		Status: SlateResponded,
	}
	err = t.db.PutReceiverSlate(t.username, receiverSlate)
	if err != nil {
		return nil, false, errors.Wrap(err, "cannot PutReceiverSlate")
	}

	// remember the pending transaction so a later network confirmation can
	// flip our output to unspent
	walletTx := Transaction{
		Transaction: ledger.Transaction{
			Transaction: slate.Transaction,
			ID:          slate.ID,
		},
		Status: TransactionUnconfirmed,
	}
	err = t.db.PutTransaction(t.username, walletTx)
	if err != nil {
		return nil, false, errors.Wrap(err, "cannot PutTransaction")
	}

	return responseBytes, true, nil
}

// Finalize completes a transaction from the receiver's response: verifies
// the receiver's partial signature, adds our own, aggregates, and checks the
// aggregate against the kernel excess computed from the commitments alone.
// Any inconsistency fails the build, releases the input locks and discards
// the saved slate.
func (t *Wallet) Finalize(responseBytes []byte) (txBytes []byte, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	var slate = Slate{}
	err = json.Unmarshal(responseBytes, &slate)
	if err != nil {
		return nil, errors.Wrap(ErrInvalidSlate, "cannot unmarshal json to slate")
	}

	slateID, err := slate.ID.MarshalText()
	if err != nil {
		return nil, errors.Wrap(ErrInvalidSlate, "cannot marshal slate id")
	}

	// a missing saved slate means this build was already finalized or
	// canceled; fail closed
	savedSlate, err := t.db.GetSenderSlate(t.username, slateID)
	if err != nil {
		return nil, errors.Wrapf(ErrInvalidSlate, "no saved slate for id %s", string(slateID))
	}

	txBytes, walletTx, err := t.finalize(&slate, savedSlate)
	if err != nil {
		// the build is dead, give the coins back
		releaseErr := t.releaseSlateInputs(savedSlate)
		if releaseErr != nil {
			return nil, errors.Wrap(releaseErr, "cannot release inputs of failed slate")
		}
		deleteErr := t.db.DeleteSenderSlate(t.username, slateID)
		if deleteErr != nil {
			return nil, errors.Wrap(deleteErr, "cannot delete failed slate")
		}
		return nil, err
	}

	// spend the inputs and make the change spendable
	for _, input := range savedSlate.Transaction.Body.Inputs {
		err = t.setOutputStatus(input.Commit, OutputSpent)
		if err != nil {
			return nil, err
		}
	}
	for _, output := range savedSlate.Transaction.Body.Outputs {
		err = t.setOutputStatus(output.Commit, OutputUnspent)
		if err != nil {
			return nil, err
		}
	}

	err = t.db.PutTransaction(t.username, walletTx)
	if err != nil {
		return nil, errors.Wrap(err, "cannot PutTransaction")
	}

	err = t.db.DeleteSenderSlate(t.username, slateID)
	if err != nil {
		return nil, errors.Wrap(err, "cannot DeleteSenderSlate")
	}

	return txBytes, nil
}

func (t *Wallet) finalize(slate *Slate, savedSlate *SavedSlate) (txBytes []byte, walletTx Transaction, err error) {
	if len(slate.ParticipantData) != 2 {
		return nil, Transaction{}, errors.Wrap(ErrInvalidSlate, "missing entries in ParticipantData")
	}
	if len(slate.Transaction.Body.Kernels) != 1 {
		return nil, Transaction{}, errors.Wrap(ErrInvalidSlate, "expected one kernel")
	}

	senderBlind := savedSlate.Blind[:]
	senderNonce := savedSlate.Nonce[:]

	ownPublicBlind, err := pubKeyFromSecretKey(t.context, senderBlind)
	if err != nil {
		return nil, Transaction{}, errors.Wrap(err, "cannot create publicBlindExcess")
	}
	ownPublicNonce, err := pubKeyFromSecretKey(t.context, senderNonce)
	if err != nil {
		return nil, Transaction{}, errors.Wrap(err, "cannot create publicNonce")
	}

	senderPublicBlind := t.context.PublicKeyFromHex(slate.ParticipantData[0].PublicBlindExcess)
	senderPublicNonce := t.context.PublicKeyFromHex(slate.ParticipantData[0].PublicNonce)
	if senderPublicBlind == nil || senderPublicNonce == nil {
		return nil, Transaction{}, errors.Wrap(ErrInvalidSlate, "cannot parse sender public keys")
	}

	// the response must carry back the same sender keys we put into the
	// slate; anything else is tampering
	if 0 != bytes.Compare(senderPublicBlind.Bytes(t.context), ownPublicBlind.Bytes(t.context)) ||
		0 != bytes.Compare(senderPublicNonce.Bytes(t.context), ownPublicNonce.Bytes(t.context)) {
		return nil, Transaction{}, errors.Wrap(ErrInvalidSlate, "sender public keys mismatch")
	}

	receiverPublicBlind := t.context.PublicKeyFromHex(slate.ParticipantData[1].PublicBlindExcess)
	receiverPublicNonce := t.context.PublicKeyFromHex(slate.ParticipantData[1].PublicNonce)
	if receiverPublicBlind == nil || receiverPublicNonce == nil {
		return nil, Transaction{}, errors.Wrap(ErrInvalidSlate, "cannot parse receiver public keys")
	}

	sumPublicBlinds, err := sumPubKeys(t.context, []*secp256k1.PublicKey{senderPublicBlind, receiverPublicBlind})
	if err != nil {
		return nil, Transaction{}, errors.Wrap(err, "cannot sum public blinds")
	}
	sumPublicNonces, err := sumPubKeys(t.context, []*secp256k1.PublicKey{senderPublicNonce, receiverPublicNonce})
	if err != nil {
		return nil, Transaction{}, errors.Wrap(err, "cannot sum public nonces")
	}

	msg := ledger.KernelSignatureMessage(slate.Transaction.Body.Kernels[0])

	if slate.ParticipantData[1].PartSig == nil {
		return nil, Transaction{}, errors.Wrap(ErrInvalidSlate, "missing receiver partial signature")
	}
	receiverPartSigBytes, err := hex.DecodeString(*slate.ParticipantData[1].PartSig)
	if err != nil {
		return nil, Transaction{}, errors.Wrap(ErrInvalidSlate, "cannot decode receiver partial signature from hex")
	}
	receiverPartSig, err := secp256k1.AggsigSignaturePartialParse(receiverPartSigBytes)
	if err != nil {
		return nil, Transaction{}, errors.Wrap(ErrInvalidSlate, "cannot parse receiver partial signature")
	}

	err = secp256k1.AggsigVerifyPartial(
		t.context,
		&receiverPartSig,
		sumPublicNonces,
		receiverPublicBlind,
		sumPublicBlinds,
		msg,
	)
	if err != nil {
		return nil, Transaction{}, errors.Wrap(ErrInvalidSlate, "cannot verify receiver partial signature")
	}

	senderPartSig, err := secp256k1.AggsigSignPartial(
		t.context,
		senderBlind, senderNonce,
		sumPublicNonces, sumPublicBlinds,
		msg,
	)
	if err != nil {
		return nil, Transaction{}, errors.Wrap(err, "cannot calculate sender partial signature")
	}

	finalSig, err := secp256k1.AggsigAddSignaturesSingle(
		t.context,
		[]*secp256k1.AggsigSignaturePartial{&senderPartSig, &receiverPartSig},
		sumPublicNonces,
	)
	if err != nil {
		return nil, Transaction{}, errors.Wrap(err, "cannot add partial signatures")
	}

	// verify the aggregate against the sum of the participants' excesses
	err = secp256k1.AggsigVerifySingle(t.context, &finalSig, msg, nil, sumPublicBlinds, sumPublicBlinds, nil, false)
	if err != nil {
		return nil, Transaction{}, errors.Wrap(ErrInvalidSlate, "cannot verify final signature")
	}

	tx := slate.Transaction

	// also verify against the kernel excess from the commitments alone, so
	// the transaction will pass ledger validation by parties who never saw
	// the slate
	excess, err := ledger.CalculateExcess(t.context, &tx, uint64(slate.Fee))
	if err != nil {
		return nil, Transaction{}, errors.Wrap(ErrInvalidSlate, "cannot calculate kernel excess")
	}
	excessPublicKey, err := secp256k1.CommitmentToPublicKey(t.context, excess)
	if err != nil {
		return nil, Transaction{}, errors.Wrap(err, "CommitmentToPublicKey failed")
	}
	err = secp256k1.AggsigVerifySingle(t.context, &finalSig, msg, nil, excessPublicKey, excessPublicKey, nil, false)
	if err != nil {
		return nil, Transaction{}, errors.Wrap(ErrInvalidSlate, "cannot verify final signature against excess")
	}

	finalSigBytes := secp256k1.AggsigSignatureSerialize(t.context, &finalSig)

	tx.Body.Kernels[0].Excess = excess.String()
	tx.Body.Kernels[0].ExcessSig = hex.EncodeToString(finalSigBytes[:])

	ledgerTx := ledger.Transaction{
		Transaction: tx,
		ID:          slate.ID,
	}

	txBytes, err = json.Marshal(ledgerTx)
	if err != nil {
		return nil, Transaction{}, errors.Wrap(err, "cannot marshal ledgerTx to json")
	}

	walletTx = Transaction{
		Transaction: ledgerTx,
		Status:      TransactionUnconfirmed,
	}

	return txBytes, walletTx, nil
}

// Cancel aborts a send in progress: the locked inputs become spendable again
// and the saved slate with its secrets is deleted.
func (t *Wallet) Cancel(id []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	savedSlate, err := t.db.GetSenderSlate(t.username, id)
	if err != nil {
		return errors.Wrap(err, "cannot GetSenderSlate")
	}

	err = t.releaseSlateInputs(savedSlate)
	if err != nil {
		return err
	}

	return t.db.DeleteSenderSlate(t.username, id)
}

func (t *Wallet) releaseSlateInputs(savedSlate *SavedSlate) error {
	for _, input := range savedSlate.Transaction.Body.Inputs {
		err := t.setOutputStatus(input.Commit, OutputUnspent)
		if err != nil {
			return err
		}
	}
	return nil
}

// validateIncomingSlate rejects slates a receiver must not sign: malformed
// amounts, a missing kernel, wrong participant count or garbage curve points.
func validateIncomingSlate(context *secp256k1.Context, slate *Slate) error {
	if slate.Amount == 0 {
		return errors.Wrap(ErrInvalidSlate, "zero amount")
	}
	if slate.NumParticipants != 2 {
		return errors.Wrap(ErrInvalidSlate, "expected two participants")
	}
	if len(slate.ParticipantData) != 1 {
		return errors.Wrap(ErrInvalidSlate, "expected one entry in ParticipantData")
	}
	if len(slate.Transaction.Body.Kernels) != 1 {
		return errors.Wrap(ErrInvalidSlate, "expected one kernel")
	}
	if uint64(slate.Transaction.Body.Kernels[0].Fee) != uint64(slate.Fee) {
		return errors.Wrap(ErrInvalidSlate, "kernel fee does not match slate fee")
	}
	if context.PublicKeyFromHex(slate.ParticipantData[0].PublicBlindExcess) == nil {
		return errors.Wrap(ErrInvalidSlate, "cannot parse sender public blind excess")
	}
	if context.PublicKeyFromHex(slate.ParticipantData[0].PublicNonce) == nil {
		return errors.Wrap(ErrInvalidSlate, "cannot parse sender public nonce")
	}
	return nil
}

// createOutput commits to value with a fresh child key blind and proves the
// value is in range. The caller persists the output.
func (t *Wallet) createOutput(value uint64, features core.OutputFeatures) (walletOutput Output, blind [32]byte, err error) {
	blind, index, err := t.newSecret()
	if err != nil {
		return Output{}, blind, errors.Wrap(err, "cannot get secret for blind")
	}

	commitment, err := secp256k1.Commit(t.context, blind[:], value, &secp256k1.GeneratorH, &secp256k1.GeneratorG)
	if err != nil {
		return Output{}, blind, errors.Wrap(err, "cannot create commitment to value")
	}

	rnd := secp256k1.Random256()
	proof, err := secp256k1.BulletproofRangeproofProveSingle(
		t.context, nil, nil,
		value, blind[:],
		rnd[:], nil, nil, nil)
	if err != nil {
		return Output{}, blind, errors.Wrap(err, "cannot create bulletproof")
	}

	walletOutput = Output{
		Output: core.Output{
			Features: features,
			Commit:   commitment.String(),
			Proof:    hex.EncodeToString(proof),
		},
		Index:  index,
		Value:  value,
		Status: OutputUnconfirmed,
	}

	return walletOutput, blind, nil
}

func pubKeyFromSecretKey(context *secp256k1.Context, sk32 []byte) (*secp256k1.PublicKey, error) {
	res, pk, err := secp256k1.EcPubkeyCreate(context, sk32)
	if res != 1 || pk == nil || err != nil {
		return nil, errors.Wrap(err, "cannot create public key from secret key")
	}

	return pk, nil
}

func sumPubKeys(context *secp256k1.Context, pubkeys []*secp256k1.PublicKey) (sum *secp256k1.PublicKey, err error) {
	res, sum, err := secp256k1.EcPubkeyCombine(context, pubkeys)
	if res != 1 || err != nil {
		return nil, errors.Wrap(err, "cannot sum public keys")
	}

	return
}
