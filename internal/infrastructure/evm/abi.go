package evm

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// secureTransferABI is the subset of the payment contract the service calls.
const secureTransferABI = `[
  {"type":"function","name":"sendETH","stateMutability":"payable","inputs":[
    {"name":"paymentId","type":"bytes32"},{"name":"to","type":"address"}],"outputs":[]},
  {"type":"function","name":"sendERC20","stateMutability":"nonpayable","inputs":[
    {"name":"paymentId","type":"bytes32"},{"name":"to","type":"address"},
    {"name":"tokenAddress","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"claim","stateMutability":"nonpayable","inputs":[
    {"name":"paymentId","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"reimburse","stateMutability":"nonpayable","inputs":[
    {"name":"paymentId","type":"bytes32"}],"outputs":[]},
  {"type":"event","name":"PaymentSent","anonymous":false,"inputs":[
    {"name":"paymentId","type":"bytes32","indexed":true},
    {"name":"from","type":"address","indexed":true},
    {"name":"to","type":"address","indexed":true},
    {"name":"amount","type":"uint256","indexed":false},
    {"name":"tokenAddress","type":"address","indexed":false}]},
  {"type":"event","name":"PaymentClaimed","anonymous":false,"inputs":[
    {"name":"paymentId","type":"bytes32","indexed":true},
    {"name":"by","type":"address","indexed":true},
    {"name":"amount","type":"uint256","indexed":false},
    {"name":"tokenAddress","type":"address","indexed":false}]},
  {"type":"event","name":"PaymentReimbursed","anonymous":false,"inputs":[
    {"name":"paymentId","type":"bytes32","indexed":true},
    {"name":"by","type":"address","indexed":true},
    {"name":"amount","type":"uint256","indexed":false},
    {"name":"tokenAddress","type":"address","indexed":false}]}
]`

const erc20ABI = `[
  {"type":"function","name":"symbol","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"string"}]},
  {"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"owner","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]}
]`

// aggregatorABI is the Chainlink AggregatorV3Interface read surface.
const aggregatorABI = `[
  {"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]},
  {"type":"function","name":"latestRoundData","stateMutability":"view","inputs":[],"outputs":[
    {"name":"roundId","type":"uint80"},{"name":"answer","type":"int256"},
    {"name":"startedAt","type":"uint256"},{"name":"updatedAt","type":"uint256"},
    {"name":"answeredInRound","type":"uint80"}]}
]`

var (
	paymentContractABI = mustParseABI(secureTransferABI)
	tokenABI           = mustParseABI(erc20ABI)
	priceFeedABI       = mustParseABI(aggregatorABI)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic("invalid embedded ABI: " + err.Error())
	}
	return parsed
}
