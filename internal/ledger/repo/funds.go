package repo

// Transições puras do par (balance, escrow). O Postgres aplica a mesma
// aritmética na linha travada com FOR UPDATE, dentro da transação que grava
// o lançamento correspondente; aqui ficam as leis monetárias em si:
// CREDIT/RELEASE só aumentam, DEBIT/SLASH só diminuem, LOCK move entre os
// dois lados sem mudar o total.

// Credit soma ao saldo disponível.
func (f Funds) Credit(amount int64) Funds {
	return Funds{Balance: f.Balance + amount, Escrow: f.Escrow}
}

// Debit subtrai do saldo disponível; falha se não houver fundos.
func (f Funds) Debit(amount int64) (Funds, error) {
	if f.Balance < amount {
		return f, ErrInsufficientBalance
	}
	return Funds{Balance: f.Balance - amount, Escrow: f.Escrow}, nil
}

// Lock move do saldo disponível para o escrow; falha se não houver fundos.
func (f Funds) Lock(amount int64) (Funds, error) {
	if f.Balance < amount {
		return f, ErrInsufficientBalance
	}
	return Funds{Balance: f.Balance - amount, Escrow: f.Escrow + amount}, nil
}

// Release devolve do escrow para o saldo disponível.
func (f Funds) Release(amount int64) Funds {
	return Funds{Balance: f.Balance + amount, Escrow: f.Escrow - amount}
}

// Slash queima do escrow sem crédito de volta.
func (f Funds) Slash(amount int64) Funds {
	return Funds{Balance: f.Balance, Escrow: f.Escrow - amount}
}

// Total é a soma disponível + escrow de uma moeda.
func (f Funds) Total() int64 { return f.Balance + f.Escrow }
