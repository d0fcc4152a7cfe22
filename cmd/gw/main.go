package main

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/grinpp/go-grinwallet/ledger"
	"github.com/grinpp/go-grinwallet/node"
	"github.com/grinpp/go-grinwallet/wallet"
)

func main() {
	var rootCmd = &cobra.Command{
		Use:          "gw",
		Short:        "Mimblewimble wallet",
		Long:         `Multiuser Mimblewimble wallet: encrypted seeds, interactive transaction building, broadcast and confirmation tracking.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if viper.GetBool("verbose") {
				log.SetLevel(log.DebugLevel)
			}
		},
	}

	home, err := homedir.Dir()
	if err != nil {
		home = "."
	}

	rootCmd.PersistentFlags().String("dir", filepath.Join(home, ".gw"), "wallet data directory")
	rootCmd.PersistentFlags().String("user", "", "wallet username")
	rootCmd.PersistentFlags().String("password", "", "wallet password")
	rootCmd.PersistentFlags().String("node", "tcp://0.0.0.0:26657", "node rpc address")
	rootCmd.PersistentFlags().Uint64("feebase", 1, "fee per unit of transaction weight")
	rootCmd.PersistentFlags().Bool("verbose", false, "debug logging")

	viper.BindPFlags(rootCmd.PersistentFlags())
	viper.SetEnvPrefix("gw")
	viper.AutomaticEnv()

	var initCmd = &cobra.Command{
		Use:   "init",
		Short: "Creates a new wallet",
		Long:  `Creates a new encrypted wallet for the user and prints the recovery mnemonic. The mnemonic is shown once, write it down.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			manager, err := openManager(&node.Stub{})
			if err != nil {
				return err
			}
			defer manager.Close()

			mnemonic, token, err := manager.InitializeNewWallet(viper.GetString("user"), []byte(viper.GetString("password")))
			if err != nil {
				return errors.Wrap(err, "cannot InitializeNewWallet")
			}
			manager.Logout(token)

			fmt.Printf("created wallet for %v\nrecovery mnemonic:\n%v\n", viper.GetString("user"), mnemonic)
			return nil
		},
	}

	var issueCmd = &cobra.Command{
		Use:   "issue amount",
		Short: "Creates outputs in the wallet",
		Long:  `Creates a coinbase output in own wallet. Use for testing only.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.Atoi(args[0])
			if err != nil {
				return errors.Wrap(err, "cannot parse amount")
			}

			return withSession(func(manager *wallet.WalletManager, token wallet.SessionToken) error {
				issueBytes, err := manager.Issue(token, uint64(amount))
				if err != nil {
					return errors.Wrap(err, "cannot Issue")
				}
				fileName := "issue-" + args[0] + ".json"
				err = ioutil.WriteFile(fileName, issueBytes, 0644)
				if err != nil {
					return errors.Wrap(err, "cannot write file "+fileName)
				}
				fmt.Printf("wrote issue of %v, send it to the network: broadcast %v\n", args[0], fileName)
				return nil
			})
		},
	}

	var sendCmd = &cobra.Command{
		Use:   "send amount [message]",
		Short: "Initiates a send transaction",
		Long:  `Creates a json file with a slate to pass to the receiver.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.Atoi(args[0])
			if err != nil {
				return errors.Wrap(err, "cannot parse amount")
			}
			message := ""
			if len(args) > 1 {
				message = args[1]
			}

			return withSession(func(manager *wallet.WalletManager, token wallet.SessionToken) error {
				slateBytes, err := manager.Send(token, uint64(amount), viper.GetUint64("feebase"), message, wallet.SelectionSmallestFirst)
				if err != nil {
					return errors.Wrap(err, "cannot Send")
				}
				id, err := wallet.ParseIDFromSlate(slateBytes)
				if err != nil {
					return errors.Wrap(err, "cannot parse id from slate")
				}
				fileName := "slate-send-" + string(id) + ".json"
				err = ioutil.WriteFile(fileName, slateBytes, 0644)
				if err != nil {
					return errors.Wrap(err, "cannot write file "+fileName)
				}
				fmt.Printf("wrote slate, pass it to the receiver to fill in and respond: receive %v\n", fileName)
				return nil
			})
		},
	}

	var receiveCmd = &cobra.Command{
		Use:   "receive slate_send_file [message]",
		Short: "Receives transfer by creating a response slate",
		Long:  `Creates a json file with a response slate with own output and partial signature from sender's slate file.`,
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slateBytes, err := ioutil.ReadFile(args[0])
			if err != nil {
				return errors.Wrap(err, "cannot read sender slate file "+args[0])
			}
			message := ""
			if len(args) > 1 {
				message = args[1]
			}

			return withSession(func(manager *wallet.WalletManager, token wallet.SessionToken) error {
				responseBytes, ok, err := manager.Receive(token, slateBytes, message)
				if err != nil {
					return errors.Wrap(err, "cannot Receive")
				}
				if !ok {
					fmt.Println("slate was already answered, no response written")
					return nil
				}
				id, err := wallet.ParseIDFromSlate(responseBytes)
				if err != nil {
					return errors.Wrap(err, "cannot parse id from slate")
				}
				fileName := "slate-receive-" + string(id) + ".json"
				err = ioutil.WriteFile(fileName, responseBytes, 0644)
				if err != nil {
					return errors.Wrap(err, "cannot write file "+fileName)
				}
				fmt.Printf("wrote slate, pass it back to the sender: finalize %v\n", fileName)
				return nil
			})
		},
	}

	var finalizeCmd = &cobra.Command{
		Use:   "finalize slate_receive_file",
		Short: "Finalizes transfer by creating a transaction from the response slate",
		Long:  `Creates a json file with a transaction to be sent to the network to get validated.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			slateBytes, err := ioutil.ReadFile(args[0])
			if err != nil {
				return errors.Wrap(err, "cannot read receiver slate file "+args[0])
			}

			return withSession(func(manager *wallet.WalletManager, token wallet.SessionToken) error {
				txBytes, err := manager.Finalize(token, slateBytes)
				if err != nil {
					return errors.Wrap(err, "cannot Finalize")
				}
				id, err := wallet.ParseIDFromSlate(slateBytes)
				if err != nil {
					return errors.Wrap(err, "cannot parse id from slate")
				}
				fileName := "tx-" + string(id) + ".json"
				err = ioutil.WriteFile(fileName, txBytes, 0644)
				if err != nil {
					return errors.Wrap(err, "cannot write file "+fileName)
				}
				fmt.Printf("wrote transaction %v, send it to the network to get validated: broadcast %v\nthen tell wallet the transaction has been confirmed: confirm %v\n", string(id), fileName, string(id))
				return nil
			})
		},
	}

	var cancelCmd = &cobra.Command{
		Use:   "cancel transaction_id",
		Short: "Cancels a transfer in progress",
		Long:  `Unlocks the coins reserved by an unfinished send and forgets its slate.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(manager *wallet.WalletManager, token wallet.SessionToken) error {
				err := manager.Cancel(token, []byte(args[0]))
				if err != nil {
					return errors.Wrap(err, "cannot Cancel")
				}
				fmt.Printf("canceled transfer %v\n", args[0])
				return nil
			})
		},
	}

	var confirmCmd = &cobra.Command{
		Use:   "confirm transaction_id",
		Short: "Tells the wallet the transaction has been confirmed",
		Long:  `Tells the wallet the transaction has been confirmed by the network so the outputs become valid and inputs spent.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(manager *wallet.WalletManager, token wallet.SessionToken) error {
				err := manager.Confirm(token, []byte(args[0]))
				if err != nil {
					return errors.Wrap(err, "cannot Confirm")
				}
				return nil
			})
		},
	}

	var balanceCmd = &cobra.Command{
		Use:   "balance",
		Short: "Prints out the wallet balance",
		Long:  `Prints out the wallet funds bucketed by spendable, locked and awaiting confirmation.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			nodeClient, err := node.NewClient(viper.GetString("node"))
			if err != nil {
				return errors.Wrap(err, "cannot connect to node")
			}
			defer nodeClient.Stop()

			return withSessionNode(nodeClient, func(manager *wallet.WalletManager, token wallet.SessionToken) error {
				summary, err := manager.GetWalletSummary(token, 10)
				if err != nil {
					return errors.Wrap(err, "cannot GetWalletSummary")
				}
				fmt.Printf("height %v\nspendable %v\nlocked %v\nawaiting confirmation %v\n",
					summary.LastConfirmedHeight, summary.Spendable, summary.Locked, summary.AwaitingConfirmation)
				return nil
			})
		},
	}

	var infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints out outputs, slates, transactions",
		Long:  `Prints out outputs, slates, transactions stored in the wallet.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withSession(func(manager *wallet.WalletManager, token wallet.SessionToken) error {
				return manager.Info(token, os.Stdout)
			})
		},
	}

	var validateCmd = &cobra.Command{
		Use:   "validate transaction_file",
		Short: "Validates transaction",
		Long:  `Validates transaction's signature, sum of inputs and outputs and bulletproofs.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transactionBytes, err := ioutil.ReadFile(args[0])
			if err != nil {
				return errors.Wrap(err, "cannot read transaction file "+args[0])
			}
			tx, err := ledger.ValidateTransactionBytes(transactionBytes)
			if err != nil {
				return errors.Wrap(err, "cannot ValidateTransactionBytes")
			}
			fmt.Printf("transaction %v is valid\n", tx.ID)
			return nil
		},
	}

	var broadcastCmd = &cobra.Command{
		Use:   "broadcast transaction_file",
		Short: "Broadcasts transaction",
		Long:  `Broadcasts transaction to the network synchronously.`,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			transactionBytes, err := ioutil.ReadFile(args[0])
			if err != nil {
				return errors.Wrap(err, "cannot read transaction file "+args[0])
			}

			nodeClient, err := node.NewClient(viper.GetString("node"))
			if err != nil {
				return errors.Wrap(err, "cannot connect to node")
			}
			defer nodeClient.Stop()

			err = nodeClient.Broadcast(transactionBytes)
			if err != nil {
				return errors.Wrap(err, "cannot Broadcast")
			}

			return nil
		},
	}

	var listenCmd = &cobra.Command{
		Use:   "listen",
		Short: "Listens to and processes confirmed transactions",
		Long:  `Subscribes to the node's event bus and updates the wallet with confirmed transactions.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			nodeClient, err := node.NewClient(viper.GetString("node"))
			if err != nil {
				return errors.Wrap(err, "cannot connect to node")
			}
			defer nodeClient.Stop()

			return withSessionNode(nodeClient, func(manager *wallet.WalletManager, token wallet.SessionToken) error {
				return nodeClient.ListenForConfirmedTx(func(transactionID []byte) {
					err := manager.Confirm(token, transactionID)
					if err != nil {
						log.WithError(err).WithField("id", string(transactionID)).Error("cannot Confirm transaction")
					}
				})
			})
		},
	}

	rootCmd.AddCommand(initCmd, issueCmd, sendCmd, receiveCmd, finalizeCmd, cancelCmd, confirmCmd, balanceCmd, infoCmd, validateCmd, broadcastCmd, listenCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openManager(nodeClient wallet.NodeClient) (*wallet.WalletManager, error) {
	dir := viper.GetString("dir")
	err := os.MkdirAll(dir, 0700)
	if err != nil {
		return nil, errors.Wrap(err, "cannot create wallet dir "+dir)
	}

	db, err := wallet.NewLeveldbDatabase(dir)
	if err != nil {
		return nil, errors.Wrap(err, "cannot open wallet db")
	}

	return wallet.NewWalletManager(db, nodeClient), nil
}

// withSession runs fn logged in with the user and password from the flags,
// against a stub node. Offline commands never need a chain connection.
func withSession(fn func(manager *wallet.WalletManager, token wallet.SessionToken) error) error {
	return withSessionNode(&node.Stub{}, fn)
}

func withSessionNode(nodeClient wallet.NodeClient, fn func(manager *wallet.WalletManager, token wallet.SessionToken) error) error {
	manager, err := openManager(nodeClient)
	if err != nil {
		return err
	}
	defer manager.Close()

	token, err := manager.Login(viper.GetString("user"), []byte(viper.GetString("password")))
	if err != nil {
		return errors.Wrap(err, "cannot login")
	}
	defer manager.Logout(token)

	return fn(manager, token)
}
