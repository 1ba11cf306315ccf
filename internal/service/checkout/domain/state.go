package domain

// State 定义了一次结账的生命周期状态
type State string

const (
	StateStart        State = "START"        // 尚未预占库存
	StateReserved     State = "RESERVED"     // 库存已预占，等待支付
	StatePaid         State = "PAID"         // 网关返回成功，支付记录尚未落库
	StateRecorded     State = "RECORDED"     // 支付记录已落库，终态
	StateCompensating State = "COMPENSATING" // 正在归还库存
	StateFailed       State = "FAILED"       // 终态
)

var transitions = map[State][]State{
	StateStart:        {StateReserved, StateFailed},
	StateReserved:     {StatePaid, StateCompensating},
	StatePaid:         {StateRecorded, StateCompensating},
	StateCompensating: {StateFailed},
}

// CanTransitionTo 判断状态迁移是否合法。
func (s State) CanTransitionTo(next State) bool {
	for _, allowed := range transitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// IsTerminal 终态不再接受任何迁移。
func (s State) IsTerminal() bool {
	return s == StateRecorded || s == StateFailed
}
