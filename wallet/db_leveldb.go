package wallet

import (
	"encoding/binary"
	"encoding/json"
	"log"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// leveldbDatabase stores all wallets in one leveldb, each record keyed under
// the owning username so wallets never see each other's data.
type leveldbDatabase struct {
	db *leveldb.DB
}

func NewLeveldbDatabase(dbDir string) (d Database, err error) {
	dbFilename := filepath.Join(dbDir, "wallet")

	ldb, err := leveldb.OpenFile(dbFilename, nil)
	if err != nil {
		err = errors.Wrapf(err, "cannot open leveldb at %v", dbFilename)
		return
	}

	d = &leveldbDatabase{db: ldb}
	return
}

func (t *leveldbDatabase) Close() {
	err := t.db.Close()
	if err != nil {
		log.Fatal("cannot close leveldb:", err)
	}
}

func seedKey(username string) []byte {
	return []byte("seed." + username)
}

func outputKey(username string, commit string) []byte {
	return []byte("output." + username + "." + commit)
}

func outputRange(username string) *util.Range {
	return util.BytesPrefix([]byte("output." + username + "."))
}

func senderSlateKey(username string, id string) []byte {
	return []byte("slate." + username + "." + id + ".s")
}

func receiverSlateKey(username string, id string) []byte {
	return []byte("slate." + username + "." + id + ".r")
}

func slateRange(username string) *util.Range {
	return util.BytesPrefix([]byte("slate." + username + "."))
}

func transactionKey(username string, id string) []byte {
	return []byte("transaction." + username + "." + id)
}

func transactionRange(username string) *util.Range {
	return util.BytesPrefix([]byte("transaction." + username + "."))
}

func indexKey(username string) []byte {
	return []byte("index." + username)
}

func (t *leveldbDatabase) CreateWallet(username string, seed EncryptedSeed) error {
	exists, err := t.db.Has(seedKey(username), nil)
	if err != nil {
		return errors.Wrap(err, "cannot check if Has seed")
	}
	if exists {
		return errors.Wrapf(ErrDuplicateWallet, "username %s", username)
	}

	seedBytes, err := json.Marshal(seed)
	if err != nil {
		return errors.Wrap(err, "cannot marshal seed into json")
	}

	err = t.db.Put(seedKey(username), seedBytes, nil)
	if err != nil {
		return errors.Wrap(err, "cannot Put seed")
	}

	return nil
}

func (t *leveldbDatabase) GetEncryptedSeed(username string) (seed EncryptedSeed, err error) {
	seedBytes, err := t.db.Get(seedKey(username), nil)
	if err == leveldb.ErrNotFound {
		return EncryptedSeed{}, errors.Wrapf(ErrNotFound, "no seed for username %s", username)
	}
	if err != nil {
		return EncryptedSeed{}, errors.Wrap(err, "cannot Get seed")
	}

	err = json.Unmarshal(seedBytes, &seed)
	if err != nil {
		return EncryptedSeed{}, errors.Wrap(err, "cannot unmarshal seedBytes")
	}

	return seed, nil
}

func (t *leveldbDatabase) PutOutput(username string, output Output) error {
	outputBytes, err := json.Marshal(output)
	if err != nil {
		return errors.Wrap(err, "cannot marshal output into json")
	}

	err = t.db.Put(outputKey(username, output.Commit), outputBytes, nil)
	if err != nil {
		return errors.Wrap(err, "cannot Put output")
	}

	return nil
}

func (t *leveldbDatabase) GetOutput(username string, commit string) (output Output, err error) {
	outputBytes, err := t.db.Get(outputKey(username, commit), nil)
	if err == leveldb.ErrNotFound {
		return Output{}, errors.Wrapf(ErrNotFound, "no output %s", commit)
	}
	if err != nil {
		return Output{}, errors.Wrap(err, "cannot Get output")
	}

	err = json.Unmarshal(outputBytes, &output)
	if err != nil {
		return Output{}, errors.Wrap(err, "cannot unmarshal outputBytes")
	}

	return output, nil
}

func (t *leveldbDatabase) ListOutputs(username string) (outputs []Output, err error) {
	outputs = make([]Output, 0)

	iter := t.db.NewIterator(outputRange(username), nil)
	for iter.Next() {
		output := Output{}
		err = json.Unmarshal(iter.Value(), &output)
		if err != nil {
			return nil, errors.Wrap(err, "cannot unmarshal output in iterator")
		}
		outputs = append(outputs, output)
	}

	iter.Release()
	err = iter.Error()
	if err != nil {
		return nil, errors.Wrap(err, "cannot iterate")
	}

	return outputs, nil
}

func (t *leveldbDatabase) PutSenderSlate(username string, slate *SavedSlate) error {
	slateBytes, err := json.Marshal(slate)
	if err != nil {
		return errors.Wrap(err, "cannot marshal SavedSlate into json")
	}

	err = t.db.Put(senderSlateKey(username, slate.ID.String()), slateBytes, nil)
	if err != nil {
		return errors.Wrap(err, "cannot Put slate")
	}

	return nil
}

func (t *leveldbDatabase) GetSenderSlate(username string, id []byte) (slate *SavedSlate, err error) {
	slateBytes, err := t.db.Get(senderSlateKey(username, string(id)), nil)
	if err == leveldb.ErrNotFound {
		return nil, errors.Wrapf(ErrNotFound, "no slate %s", string(id))
	}
	if err != nil {
		err = errors.Wrap(err, "cannot Get slate")
		return
	}

	slate = &SavedSlate{}

	err = json.Unmarshal(slateBytes, slate)
	if err != nil {
		err = errors.Wrap(err, "cannot unmarshal slateBytes")
		return
	}

	return slate, nil
}

func (t *leveldbDatabase) DeleteSenderSlate(username string, id []byte) error {
	err := t.db.Delete(senderSlateKey(username, string(id)), nil)
	if err != nil {
		return errors.Wrap(err, "cannot Delete slate")
	}

	return nil
}

func (t *leveldbDatabase) PutReceiverSlate(username string, slate *SavedSlate) error {
	slateBytes, err := json.Marshal(slate)
	if err != nil {
		return errors.Wrap(err, "cannot marshal SavedSlate into json")
	}

	err = t.db.Put(receiverSlateKey(username, slate.ID.String()), slateBytes, nil)
	if err != nil {
		return errors.Wrap(err, "cannot Put slate")
	}

	return nil
}

func (t *leveldbDatabase) HasReceiverSlate(username string, id []byte) (exists bool, err error) {
	exists, err = t.db.Has(receiverSlateKey(username, string(id)), nil)
	if err != nil {
		return false, errors.Wrap(err, "cannot check if Has slate")
	}

	return exists, nil
}

func (t *leveldbDatabase) ListSlates(username string) (slates []SavedSlate, err error) {
	slates = make([]SavedSlate, 0)

	iter := t.db.NewIterator(slateRange(username), nil)
	for iter.Next() {
		slate := SavedSlate{}
		err = json.Unmarshal(iter.Value(), &slate)
		if err != nil {
			return nil, errors.Wrap(err, "cannot unmarshal slate in iterator")
		}
		slates = append(slates, slate)
	}

	iter.Release()
	err = iter.Error()
	if err != nil {
		return nil, errors.Wrap(err, "cannot iterate")
	}

	return slates, nil
}

func (t *leveldbDatabase) PutTransaction(username string, transaction Transaction) error {
	transactionBytes, err := json.Marshal(transaction)
	if err != nil {
		return errors.Wrap(err, "cannot marshal transaction into json")
	}

	err = t.db.Put(transactionKey(username, transaction.ID.String()), transactionBytes, nil)
	if err != nil {
		return errors.Wrap(err, "cannot Put transaction")
	}

	return nil
}

func (t *leveldbDatabase) GetTransaction(username string, id []byte) (transaction Transaction, err error) {
	transactionBytes, err := t.db.Get(transactionKey(username, string(id)), nil)
	if err == leveldb.ErrNotFound {
		return Transaction{}, errors.Wrapf(ErrNotFound, "no transaction %s", string(id))
	}
	if err != nil {
		return Transaction{}, errors.Wrap(err, "cannot Get transaction")
	}

	err = json.Unmarshal(transactionBytes, &transaction)
	if err != nil {
		return Transaction{}, errors.Wrap(err, "cannot unmarshal transactionBytes")
	}

	return transaction, nil
}

func (t *leveldbDatabase) ListTransactions(username string) (transactions []Transaction, err error) {
	transactions = make([]Transaction, 0)

	iter := t.db.NewIterator(transactionRange(username), nil)
	for iter.Next() {
		transaction := Transaction{}
		err = json.Unmarshal(iter.Value(), &transaction)
		if err != nil {
			return nil, errors.Wrap(err, "cannot unmarshal transaction in iterator")
		}
		transactions = append(transactions, transaction)
	}

	iter.Release()
	err = iter.Error()
	if err != nil {
		return nil, errors.Wrap(err, "cannot iterate")
	}

	return transactions, nil
}

func (t *leveldbDatabase) NextIndex(username string) (uint32, error) {
	key := indexKey(username)

	exists, err := t.db.Has(key, nil)
	if err != nil {
		return 0, errors.Wrap(err, "cannot check if Has index")
	}

	var index uint32 = 0
	var indexBytes = make([]byte, 4)

	if exists {
		indexBytes, err := t.db.Get(key, nil)
		if err != nil {
			return 0, errors.Wrap(err, "cannot Get index")
		}

		index = binary.BigEndian.Uint32(indexBytes)
		index++
	}

	binary.BigEndian.PutUint32(indexBytes, index)

	err = t.db.Put(key, indexBytes, nil)
	if err != nil {
		return 0, errors.Wrap(err, "cannot Put index")
	}

	return index, nil
}
